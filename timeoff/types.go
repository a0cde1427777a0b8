// Package timeoff implements the leave request lifecycle and balance accounting.
// It uses the generic value types with leave-specific statuses, types and rules.
package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string

// =============================================================================
// LEAVE TYPE
// =============================================================================

type LeaveType string

const (
	LeaveSick      LeaveType = "SICK"
	LeaveCasual    LeaveType = "CASUAL"
	LeaveAnnual    LeaveType = "ANNUAL"
	LeaveMaternity LeaveType = "MATERNITY"
	LeavePaternity LeaveType = "PATERNITY"
	LeaveUnpaid    LeaveType = "UNPAID"
)

// LeaveTypes lists every accepted leave type.
var LeaveTypes = []LeaveType{LeaveSick, LeaveCasual, LeaveAnnual, LeaveMaternity, LeavePaternity, LeaveUnpaid}

func (t LeaveType) Valid() bool {
	for _, lt := range LeaveTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// ParseLeaveType accepts the symbolic names case-insensitively.
func ParseLeaveType(s string) (LeaveType, error) {
	t := LeaveType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown leave type %q", generic.ErrInvalidInput, s)
	}
	return t, nil
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts the symbolic names case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", generic.ErrInvalidInput, s)
	}
	return st, nil
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

const (
	MaxReasonLength   = 1000
	MaxCommentsLength = 500
)

// LeaveRequest is one employee's request for an inclusive range of days.
// Records are never deleted; closed requests stay as the audit trail.
type LeaveRequest struct {
	ID         RequestID
	EmployeeID EmployeeID
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	DayCount   int
	LeaveType  LeaveType
	Reason     string
	Status     Status

	// Set only by a decision
	ReviewerID       EmployeeID
	ReviewerComments string
	DecidedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Range returns the inclusive date range of the request.
func (r *LeaveRequest) Range() generic.DateRange {
	return generic.NewDateRange(r.StartDate, r.EndDate)
}

// Days is the request's cost as an Amount.
func (r *LeaveRequest) Days() generic.Amount {
	return generic.NewAmountFromInt(r.DayCount, generic.UnitDays)
}

// HasReviewer reports whether a decision recorded a reviewer.
func (r *LeaveRequest) HasReviewer() bool { return r.ReviewerID != "" }

// =============================================================================
// EMPLOYEE
// =============================================================================

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleManager || r == RoleAdmin
}

// Employee is the part of an employee record the engine needs.
// Requests refer to employees by id only.
type Employee struct {
	ID           EmployeeID
	Username     string
	Email        string
	FullName     string
	Department   string
	Roles        []Role
	LeaveBalance decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e *Employee) Balance() generic.Amount {
	return generic.Days(e.LeaveBalance)
}

func (e *Employee) HasRole(role Role) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JoinRoles and SplitRoles convert roles to and from their stored form.
func JoinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func SplitRoles(s string) []Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, Role(p))
		}
	}
	return roles
}
