package timeoff

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// DIRECTORY - Employee registration and lookup
// =============================================================================

// DefaultStartingBalance is the balance of a newly registered employee.
var DefaultStartingBalance = decimal.NewFromInt(20)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
)

// NewEmployee is the input to Directory.Register.
type NewEmployee struct {
	Username   string
	Email      string
	FullName   string
	Department string
	Roles      []Role // defaults to EMPLOYEE
}

type Directory struct {
	store        TxStore
	startBalance decimal.Decimal
	clock        generic.Clock
	logger       *zap.Logger
	validate     *validator.Validate
}

type DirectoryOption func(*Directory)

func WithStartingBalance(days decimal.Decimal) DirectoryOption {
	return func(d *Directory) { d.startBalance = days }
}

func WithDirectoryClock(c generic.Clock) DirectoryOption {
	return func(d *Directory) { d.clock = c }
}

func WithDirectoryLogger(logger *zap.Logger) DirectoryOption {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDirectory(store TxStore, opts ...DirectoryOption) *Directory {
	d := &Directory{
		store:        store,
		startBalance: DefaultStartingBalance,
		clock:        generic.SystemClock,
		logger:       zap.NewNop(),
		validate:     validator.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("timeoff.directory")
	return d
}

func (d *Directory) checkNewEmployee(in NewEmployee) error {
	n := utf8.RuneCountInString(in.Username)
	if n < minUsernameLength || n > maxUsernameLength {
		return fmt.Errorf("%w: username must be between %d and %d characters",
			generic.ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if in.Email == "" {
		return fmt.Errorf("%w: email is required", generic.ErrInvalidInput)
	}
	if err := d.validate.Var(in.Email, "email"); err != nil {
		return fmt.Errorf("%w: email %q is not valid", generic.ErrInvalidInput, in.Email)
	}
	if strings.TrimSpace(in.FullName) == "" {
		return fmt.Errorf("%w: full name is required", generic.ErrInvalidInput)
	}
	for _, r := range in.Roles {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown role %q", generic.ErrInvalidInput, r)
		}
	}
	return nil
}

// Register creates an employee with the starting balance.
func (d *Directory) Register(ctx context.Context, in NewEmployee) (*Employee, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	d.logger.Debug("register employee requested", zap.String("username", in.Username))

	if err := d.checkNewEmployee(in); err != nil {
		d.logger.Warn("register employee validation failed", zap.Error(err))
		return nil, err
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []Role{RoleEmployee}
	}

	var created *Employee
	err := d.store.WithTx(ctx, func(s Store) error {
		taken, err := s.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: username %q is already taken", generic.ErrConflict, in.Username)
		}
		taken, err = s.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email %q is already registered", generic.ErrConflict, in.Email)
		}

		now := d.clock.Now()
		emp := &Employee{
			ID:           EmployeeID(uuid.NewString()),
			Username:     in.Username,
			Email:        in.Email,
			FullName:     in.FullName,
			Department:   in.Department,
			Roles:        roles,
			LeaveBalance: d.startBalance,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.CreateEmployee(ctx, emp); err != nil {
			return err
		}
		created = emp
		return nil
	})
	if err != nil {
		if generic.IsClientError(err) {
			d.logger.Warn("register employee rejected", zap.String("username", in.Username), zap.Error(err))
			return nil, err
		}
		d.logger.Error("register employee failed", zap.String("username", in.Username), zap.Error(err))
		return nil, generic.Internal("register employee", err)
	}

	d.logger.Info("register employee success",
		zap.String("employee_id", string(created.ID)),
		zap.String("username", created.Username),
	)
	return created, nil
}

func (d *Directory) Get(ctx context.Context, id EmployeeID) (*Employee, error) {
	emp, err := d.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, generic.Internal("get employee", err)
	}
	return emp, nil
}

func (d *Directory) ByUsername(ctx context.Context, username string) (*Employee, error) {
	emp, err := d.store.GetEmployeeByUsername(ctx, username)
	if err != nil {
		return nil, generic.Internal("get employee by username", err)
	}
	return emp, nil
}
