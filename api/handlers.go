/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the request ledger and directory via REST API. Handles HTTP
  request/response and JSON serialization, and delegates every rule to the
  timeoff package.

ENDPOINTS:
  Employees:
    POST   /api/employees                     Register employee (ADMIN)
    GET    /api/me                            Current employee

  Leaves (EMPLOYEE):
    POST   /api/leaves                        Submit a request
    GET    /api/leaves                        Own requests, most recent first
    GET    /api/leaves/balance                Own balance summary
    DELETE /api/leaves/{id}                   Cancel own request

  Review (MANAGER):
    GET    /api/manager/leaves                All requests
    GET    /api/manager/leaves/pending        Pending requests
    PUT    /api/manager/leaves/{id}/decision  Approve or reject

  Admin:
    GET    /api/admin/leaves/export           xlsx workbook

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate DTO tags
  3. Call the ledger or directory as the authenticated principal
  4. Resolve owner and reviewer names for request views
  5. Serialize response, or map the error kind to a status

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Kind to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/report"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// maxBodyBytes bounds every JSON body; the largest valid one is well under it.
	maxBodyBytes = 64 << 10
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *timeoff.RequestLedger
	Directory *timeoff.Directory

	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler over the given ledger and directory.
func NewHandler(ledger *timeoff.RequestLedger, directory *timeoff.Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Ledger:    ledger,
		Directory: directory,
		logger:    logger.Named("api"),
		validate:  v,
	}
}

// decode reads a JSON body into dst and runs its validator tags.
// It writes the 400 response itself and reports whether to continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, string(generic.KindInvalidInput),
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		}
		writeError(w, http.StatusBadRequest, string(generic.KindInvalidInput), "invalid JSON body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) principal(r *http.Request) *timeoff.Employee {
	emp, _ := PrincipalFrom(r.Context())
	return emp
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// CreateEmployee registers an employee with the default starting balance.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	roles := make([]timeoff.Role, len(req.Roles))
	for i, role := range req.Roles {
		roles[i] = timeoff.Role(role)
	}

	emp, err := h.Directory.Register(r.Context(), timeoff.NewEmployee{
		Username:   req.Username,
		Email:      req.Email,
		FullName:   req.FullName,
		Department: req.Department,
		Roles:      roles,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// Me returns the authenticated employee.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEmployeeDTO(h.principal(r)))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave creates a PENDING request for the authenticated employee.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		h.writeEngineError(w, r, fmt.Errorf("%w: start_date: %v", generic.ErrInvalidInput, err))
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		h.writeEngineError(w, r, fmt.Errorf("%w: end_date: %v", generic.ErrInvalidInput, err))
		return
	}
	leaveType, err := timeoff.ParseLeaveType(req.LeaveType)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	created, err := h.Ledger.Submit(r.Context(), h.principal(r).ID, timeoff.SubmitInput{
		StartDate: start,
		EndDate:   end,
		LeaveType: leaveType,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeRequest(w, r, http.StatusCreated, created)
}

// ListMyLeaves returns the authenticated employee's requests.
func (h *Handler) ListMyLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Ledger.ListForEmployee(r.Context(), h.principal(r).ID)
	h.writeRequests(w, r, reqs, err)
}

// MyBalance returns the authenticated employee's balance summary.
func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.Summarize(r.Context(), h.principal(r).ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(summary))
}

// CancelLeave cancels one of the authenticated employee's requests.
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	id := timeoff.RequestID(chi.URLParam(r, "id"))
	if err := h.Ledger.Cancel(r.Context(), h.principal(r).ID, id); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

func (h *Handler) ListAllLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Ledger.ListAll(r.Context())
	h.writeRequests(w, r, reqs, err)
}

func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Ledger.ListPending(r.Context())
	h.writeRequests(w, r, reqs, err)
}

// DecideLeave approves or rejects a pending request.
func (h *Handler) DecideLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, err := timeoff.ParseStatus(req.Status)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	id := timeoff.RequestID(chi.URLParam(r, "id"))
	decided, err := h.Ledger.Decide(r.Context(), h.principal(r).ID, id, timeoff.DecideInput{
		Status:   status,
		Comments: req.Comments,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeRequest(w, r, http.StatusOK, decided)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ExportLeaves streams every request as an xlsx workbook.
func (h *Handler) ExportLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Ledger.ListAll(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	rows, err := report.Enrich(r.Context(), h.Directory, reqs)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	// Buffered so a failed render can still answer with an error status.
	var buf bytes.Buffer
	if err := report.WriteLeaveRequests(&buf, rows); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="leave-requests.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeRequest(w http.ResponseWriter, r *http.Request, status int, req *timeoff.LeaveRequest) {
	rows, err := report.Enrich(r.Context(), h.Directory, []timeoff.LeaveRequest{*req})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, status, toLeaveRequestDTO(rows[0]))
}

func (h *Handler) writeRequests(w http.ResponseWriter, r *http.Request, reqs []timeoff.LeaveRequest, err error) {
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	rows, err := report.Enrich(r.Context(), h.Directory, reqs)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toLeaveRequestDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}
