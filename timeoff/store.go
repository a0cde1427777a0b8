/*
store.go - Persistence interface for leave requests and employee balances

PURPOSE:
  Defines the contract between the engine and the database. The engine holds
  no shared mutable state of its own: every request and every balance lives
  behind this interface, and every public operation runs inside WithTx.

STORAGE GUARANTEES THE ENGINE RELIES ON:
  1. WithTx runs fn as one atomic unit: all writes commit or none do, and the
     reads inside fn see one consistent snapshot.
  2. UpdateRequest is a compare-and-set on status: it writes only if the stored
     status still equals the status the caller read, otherwise it returns
     generic.ErrConcurrentModification. Two reviewers deciding the same request
     can never both succeed.
  3. AdjustBalance is an atomic read-modify-write of one employee's balance,
     optionally refusing to go below a floor.

ORDERING:
  ListRequests returns most recent first (created_at DESC, insertion order as
  tie-breaker).

IMPLEMENTATIONS:
  - store/memory: In-memory, single lock, snapshot rollback (tests, dev)
  - store/sqlite: SQLite, serialized write transactions
  - store/postgres: PostgreSQL, SELECT ... FOR UPDATE inside transactions

SEE ALSO:
  - request.go: RequestLedger, the main consumer
  - balance.go: BalanceAccount
*/
package timeoff

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreateRequest inserts a new request.
	CreateRequest(ctx context.Context, req *LeaveRequest) error

	// GetRequest returns the request or an error wrapping generic.ErrNotFound.
	// Inside a transaction the row stays locked until commit where the
	// database supports it.
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)

	// UpdateRequest persists req only if the stored status equals expected.
	UpdateRequest(ctx context.Context, req *LeaveRequest, expected Status) error

	// ListRequests returns requests matching filter, most recent first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	// FindOverlapping returns the employee's requests whose range intersects r.
	// An empty statuses slice means any status.
	FindOverlapping(ctx context.Context, employeeID EmployeeID, r generic.DateRange, statuses []Status) ([]LeaveRequest, error)

	// CreateEmployee inserts a new employee; duplicate username or email
	// returns an error wrapping generic.ErrConflict.
	CreateEmployee(ctx context.Context, e *Employee) error

	// GetEmployee returns the employee or an error wrapping generic.ErrNotFound.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// GetEmployeeByUsername returns the employee or an error wrapping generic.ErrNotFound.
	GetEmployeeByUsername(ctx context.Context, username string) (*Employee, error)

	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// AdjustBalance adds delta to the employee's balance and returns the new
	// value. With a non-nil floor, a result below *floor leaves the balance
	// unchanged and returns a *generic.InsufficientBalanceError.
	AdjustBalance(ctx context.Context, id EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error)
}

// RequestFilter narrows ListRequests. Zero fields do not filter.
type RequestFilter struct {
	EmployeeID EmployeeID
	Status     Status
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
