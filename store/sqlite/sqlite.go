/*
Package sqlite provides a SQLite-backed implementation of timeoff.TxStore.

PURPOSE:
  Persists employees and leave requests. The same statements run on
  PostgreSQL with minor dialect changes (see store/postgres).

KEY TABLES:
  employees:       Identity, roles and the mutable leave balance
  leave_requests:  Every request ever submitted; rows are never deleted

INDEXES:
  - idx_leave_requests_employee_dates: Overlap lookup (hot path on submit)
  - idx_leave_requests_status: Pending queue
  - idx_leave_requests_created: Recent-first listing

CONCURRENCY:
  Write transactions are serialized with a sync.RWMutex, so the status
  guard and balance read-modify-write inside WithTx cannot interleave.
  UpdateRequest additionally compares the stored status in its WHERE
  clause, which keeps it safe when called outside WithTx.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := timeoff.NewRequestLedger(store)

SEE ALSO:
  - timeoff/store.go: Interface definition
  - store/memory: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation with row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// timestampLayout has a fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements timeoff.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.RWMutex
}

var _ timeoff.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an open database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		roles TEXT NOT NULL,
		leave_balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- seq breaks created_at ties in insertion order
	CREATE TABLE IF NOT EXISTS leave_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		day_count INTEGER NOT NULL CHECK (day_count >= 1),
		leave_type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reviewer_id TEXT REFERENCES employees(id),
		reviewer_comments TEXT NOT NULL DEFAULT '',
		decided_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_dates
		ON leave_requests(employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_created
		ON leave_requests(created_at DESC, seq DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store timeoff.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// The view talks to the transaction directly and never touches s.mu.
	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Writes outside WithTx take the same lock as transactions.

func (s *Store) CreateRequest(ctx context.Context, req *timeoff.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries.CreateRequest(ctx, req)
}

func (s *Store) UpdateRequest(ctx context.Context, req *timeoff.LeaveRequest, expected timeoff.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries.UpdateRequest(ctx, req, expected)
}

func (s *Store) CreateEmployee(ctx context.Context, e *timeoff.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries.CreateEmployee(ctx, e)
}

// AdjustBalance runs its read-modify-write in its own transaction.
func (s *Store) AdjustBalance(ctx context.Context, id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.WithTx(ctx, func(ts timeoff.Store) error {
		var err error
		balance, err = ts.AdjustBalance(ctx, id, delta, floor)
		return err
	})
	return balance, err
}

// =============================================================================
// QUERIES - Shared by Store and the transaction view
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

const requestColumns = `id, employee_id, start_date, end_date, day_count, leave_type, reason, status,
	reviewer_id, reviewer_comments, decided_at, created_at, updated_at`

const employeeColumns = `id, username, email, full_name, department, roles, leave_balance, created_at, updated_at`

func (qs *queries) CreateRequest(ctx context.Context, req *timeoff.LeaveRequest) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(req.ID), string(req.EmployeeID), req.StartDate.String(), req.EndDate.String(), req.DayCount,
		string(req.LeaveType), req.Reason, string(req.Status),
		nullableID(req.ReviewerID), req.ReviewerComments, nullableTime(req.DecidedAt),
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: leave request %s already exists", generic.ErrConflict, req.ID)
		}
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (qs *queries) GetRequest(ctx context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: leave request %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	return req, nil
}

func (qs *queries) UpdateRequest(ctx context.Context, req *timeoff.LeaveRequest, expected timeoff.Status) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, reviewer_id = ?, reviewer_comments = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(req.Status), nullableID(req.ReviewerID), req.ReviewerComments, nullableTime(req.DecidedAt),
		formatTime(req.UpdatedAt), string(req.ID), string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: tell a missing row from a lost race.
	var exists int
	err = qs.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM leave_requests WHERE id = ?`, string(req.ID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: leave request %s", generic.ErrNotFound, req.ID)
	}
	return fmt.Errorf("%w: leave request %s is no longer %s", generic.ErrConcurrentModification, req.ID, expected)
}

func (qs *queries) ListRequests(ctx context.Context, filter timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	var where []string
	var args []any
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(filter.EmployeeID))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	return qs.queryRequests(ctx, query, args...)
}

// FindOverlapping uses the interval intersection test, which for valid
// ranges matches generic.DateRange.Overlaps.
func (qs *queries) FindOverlapping(ctx context.Context, employeeID timeoff.EmployeeID, r generic.DateRange, statuses []timeoff.Status) ([]timeoff.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ?`
	args := []any{string(employeeID), r.End.String(), r.Start.String()}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	return qs.queryRequests(ctx, query, args...)
}

func (qs *queries) queryRequests(ctx context.Context, query string, args ...any) ([]timeoff.LeaveRequest, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var result []timeoff.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func (qs *queries) CreateEmployee(ctx context.Context, e *timeoff.Employee) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(e.ID), e.Username, e.Email, e.FullName, e.Department, timeoff.JoinRoles(e.Roles),
		e.LeaveBalance.String(), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: employee %q already exists", generic.ErrConflict, e.Username)
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

func (qs *queries) GetEmployee(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, string(id))
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

func (qs *queries) GetEmployeeByUsername(ctx context.Context, username string) (*timeoff.Employee, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE username = ?`, username)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: employee %q", generic.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

func (qs *queries) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return qs.exists(ctx, `SELECT EXISTS(SELECT 1 FROM employees WHERE username = ?)`, username)
}

func (qs *queries) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return qs.exists(ctx, `SELECT EXISTS(SELECT 1 FROM employees WHERE email = ?)`, email)
}

func (qs *queries) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := qs.q.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

// AdjustBalance must run inside a transaction; Store.AdjustBalance wraps it.
func (qs *queries) AdjustBalance(ctx context.Context, id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := qs.q.QueryRowContext(ctx, `SELECT leave_balance FROM employees WHERE id = ?`, string(id)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	next := current.Add(delta)
	if floor != nil && next.LessThan(*floor) {
		return decimal.Zero, &generic.InsufficientBalanceError{
			EmployeeID: string(id),
			Available:  generic.Days(current),
			Requested:  generic.Days(delta.Neg()),
		}
	}

	_, err = qs.q.ExecContext(ctx,
		`UPDATE employees SET leave_balance = ?, updated_at = ? WHERE id = ?`,
		next.String(), formatTime(time.Now()), string(id),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	return next, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*timeoff.LeaveRequest, error) {
	var (
		req                    timeoff.LeaveRequest
		startStr, endStr       string
		reviewerID             sql.NullString
		decidedAt              sql.NullString
		createdStr, updatedStr string
	)
	err := row.Scan(
		&req.ID, &req.EmployeeID, &startStr, &endStr, &req.DayCount, &req.LeaveType, &req.Reason, &req.Status,
		&reviewerID, &req.ReviewerComments, &decidedAt, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	if req.StartDate, err = generic.ParseDate(startStr); err != nil {
		return nil, err
	}
	if req.EndDate, err = generic.ParseDate(endStr); err != nil {
		return nil, err
	}
	req.ReviewerID = timeoff.EmployeeID(reviewerID.String)
	if decidedAt.Valid {
		t, err := parseTime(decidedAt.String)
		if err != nil {
			return nil, err
		}
		req.DecidedAt = &t
	}
	if req.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanEmployee(row scanner) (*timeoff.Employee, error) {
	var (
		emp                    timeoff.Employee
		roles                  string
		createdStr, updatedStr string
	)
	err := row.Scan(
		&emp.ID, &emp.Username, &emp.Email, &emp.FullName, &emp.Department, &roles,
		&emp.LeaveBalance, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}
	emp.Roles = timeoff.SplitRoles(roles)
	if emp.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	if emp.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &emp, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableID(id timeoff.EmployeeID) any {
	if id == "" {
		return nil
	}
	return string(id)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
