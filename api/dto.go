/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the wire format: dates travel as YYYY-MM-DD,
  balances as plain numbers of days.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator tags; handlers run them before calling the
  engine. The engine validates again, so the tags only shape error messages.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/report"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateEmployeeRequest registers a new employee.
type CreateEmployeeRequest struct {
	Username   string   `json:"username" validate:"required,min=3,max=50"`
	Email      string   `json:"email" validate:"required,email"`
	FullName   string   `json:"full_name" validate:"required,max=200"`
	Department string   `json:"department" validate:"max=100"`
	Roles      []string `json:"roles" validate:"dive,oneof=EMPLOYEE MANAGER ADMIN"`
}

// SubmitLeaveRequest is the body of POST /api/leaves.
type SubmitLeaveRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	LeaveType string `json:"leave_type" validate:"required"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// DecisionRequest is the body of PUT /api/manager/leaves/{id}/decision.
type DecisionRequest struct {
	Status   string `json:"status" validate:"required"`
	Comments string `json:"comments" validate:"max=500"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	Department   string   `json:"department,omitempty"`
	Roles        []string `json:"roles"`
	LeaveBalance float64  `json:"leave_balance"`
	CreatedAt    string   `json:"created_at"`
}

// LeaveRequestDTO is a request with its owner and reviewer resolved.
type LeaveRequestDTO struct {
	ID               string  `json:"id"`
	EmployeeID       string  `json:"employee_id"`
	EmployeeName     string  `json:"employee_name"`
	EmployeeEmail    string  `json:"employee_email"`
	Department       string  `json:"department,omitempty"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	DayCount         int     `json:"day_count"`
	LeaveType        string  `json:"leave_type"`
	Reason           string  `json:"reason,omitempty"`
	Status           string  `json:"status"`
	ReviewerID       string  `json:"reviewer_id,omitempty"`
	ReviewerName     string  `json:"reviewer_name,omitempty"`
	ReviewerComments string  `json:"reviewer_comments,omitempty"`
	DecidedAt        *string `json:"decided_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// BalanceDTO is an employee's balance summary.
type BalanceDTO struct {
	EmployeeID       string  `json:"employee_id"`
	TotalAllotment   float64 `json:"total_allotment"`
	UsedDays         float64 `json:"used_days"`
	RemainingBalance float64 `json:"remaining_balance"`
	PendingRequests  int     `json:"pending_requests"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e *timeoff.Employee) EmployeeDTO {
	roles := make([]string, len(e.Roles))
	for i, r := range e.Roles {
		roles[i] = string(r)
	}
	return EmployeeDTO{
		ID:           string(e.ID),
		Username:     e.Username,
		Email:        e.Email,
		FullName:     e.FullName,
		Department:   e.Department,
		Roles:        roles,
		LeaveBalance: e.Balance().Float64(),
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toLeaveRequestDTO(row report.Row) LeaveRequestDTO {
	req := row.Request
	dto := LeaveRequestDTO{
		ID:               string(req.ID),
		EmployeeID:       string(req.EmployeeID),
		StartDate:        req.StartDate.String(),
		EndDate:          req.EndDate.String(),
		DayCount:         req.DayCount,
		LeaveType:        string(req.LeaveType),
		Reason:           req.Reason,
		Status:           string(req.Status),
		ReviewerID:       string(req.ReviewerID),
		ReviewerComments: req.ReviewerComments,
		CreatedAt:        req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        req.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if row.Owner != nil {
		dto.EmployeeName = row.Owner.FullName
		dto.EmployeeEmail = row.Owner.Email
		dto.Department = row.Owner.Department
	}
	if row.Reviewer != nil {
		dto.ReviewerName = row.Reviewer.FullName
	}
	if req.DecidedAt != nil {
		s := req.DecidedAt.UTC().Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	return dto
}

func toBalanceDTO(s *timeoff.Summary) BalanceDTO {
	return BalanceDTO{
		EmployeeID:       string(s.EmployeeID),
		TotalAllotment:   s.TotalAllotment.Float64(),
		UsedDays:         s.UsedDays.Float64(),
		RemainingBalance: s.RemainingBalance.Float64(),
		PendingRequests:  s.PendingCount,
	}
}
