/*
auth.go - Principal resolution and role authorization

PURPOSE:
  Turns a bearer token into the acting employee and decides whether that
  employee may reach a route. Token issuance lives outside this service;
  here tokens are only verified.

TOKENS:
  HS256 JWTs signed with auth.jwt_secret. "sub" carries the employee id;
  tokens without one may carry "username" instead.

ROLES (casbin, RBAC with inheritance):
  EMPLOYEE  leaves/request      submit, list own, balance, cancel own
  MANAGER   leaves/review       list all, list pending, decide
  ADMIN     employees/manage    register employees
            reports/export      xlsx export
  ADMIN inherits MANAGER, MANAGER inherits EMPLOYEE.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

// =============================================================================
// PRINCIPAL
// =============================================================================

type principalKey struct{}

// Claims are the token fields the service reads.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalFrom returns the employee resolved by the auth middleware.
func PrincipalFrom(ctx context.Context) (*timeoff.Employee, bool) {
	emp, ok := ctx.Value(principalKey{}).(*timeoff.Employee)
	return emp, ok
}

func withPrincipal(ctx context.Context, emp *timeoff.Employee) context.Context {
	return context.WithValue(ctx, principalKey{}, emp)
}

// Authenticator verifies bearer tokens and loads the acting employee.
type Authenticator struct {
	secret    []byte
	directory *timeoff.Directory
	logger    *zap.Logger
}

func NewAuthenticator(secret []byte, directory *timeoff.Directory, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secret: secret, directory: directory, logger: logger.Named("api.auth")}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}

		claims, err := a.parse(token)
		if err != nil {
			a.logger.Debug("token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token", nil)
			return
		}

		emp, err := a.resolve(r.Context(), claims)
		if err != nil {
			if errors.Is(err, generic.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "UNKNOWN_PRINCIPAL", "token does not name a known employee", nil)
				return
			}
			a.logger.Error("resolve principal failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(generic.KindInternal), internalMessage, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), emp)))
	})
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" && claims.Username == "" {
		return nil, errors.New("token carries neither sub nor username")
	}
	return claims, nil
}

func (a *Authenticator) resolve(ctx context.Context, c *Claims) (*timeoff.Employee, error) {
	if c.Subject != "" {
		return a.directory.Get(ctx, timeoff.EmployeeID(c.Subject))
	}
	return a.directory.ByUsername(ctx, c.Username)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

const (
	objLeaves    = "leaves"
	objEmployees = "employees"
	objReports   = "reports"

	actRequest = "request"
	actReview  = "review"
	actManage  = "manage"
	actExport  = "export"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Authorizer answers role checks against a fixed policy.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	policies := [][]string{
		{string(timeoff.RoleEmployee), objLeaves, actRequest},
		{string(timeoff.RoleManager), objLeaves, actReview},
		{string(timeoff.RoleAdmin), objEmployees, actManage},
		{string(timeoff.RoleAdmin), objReports, actExport},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}
	grouping := [][2]timeoff.Role{
		{timeoff.RoleManager, timeoff.RoleEmployee},
		{timeoff.RoleAdmin, timeoff.RoleManager},
	}
	for _, g := range grouping {
		if _, err := e.AddGroupingPolicy(string(g[0]), string(g[1])); err != nil {
			return nil, fmt.Errorf("add role inheritance %v: %w", g, err)
		}
	}
	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether any of the employee's roles grants act on obj.
func (a *Authorizer) Allowed(emp *timeoff.Employee, obj, act string) (bool, error) {
	for _, role := range emp.Roles {
		ok, err := a.enforcer.Enforce(string(role), obj, act)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Require rejects principals whose roles do not grant act on obj.
func (a *Authorizer) Require(obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			emp, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			allowed, err := a.Allowed(emp, obj, act)
			if err != nil {
				writeError(w, http.StatusInternalServerError, string(generic.KindInternal), internalMessage, nil)
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, string(generic.KindForbidden), "insufficient role for this operation", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
