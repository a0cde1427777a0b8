/*
Package postgres provides a PostgreSQL-backed implementation of timeoff.TxStore.

PURPOSE:
  Production store. Queries run over a pgx connection pool; schema
  migrations are embedded and applied with goose over database/sql.

CONCURRENCY:
  Unlike store/sqlite there is no process-wide lock. Correctness comes
  from the database:
  - GetRequest inside WithTx selects the row FOR UPDATE, so two
    transactions deciding or cancelling the same request queue up and
    the second one sees the first one's status.
  - UpdateRequest compares the stored status in its WHERE clause.
  - AdjustBalance is one conditional UPDATE ... RETURNING statement.
  - FindOverlapping inside WithTx takes a transaction-scoped advisory
    lock on the employee, so two submissions by the same employee
    cannot both pass the overlap check.
  Transactions run at READ COMMITTED.

USAGE:
  store, err := postgres.New(ctx, postgres.Config{DSN: dsn}, logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - timeoff/store.go: Interface definition
  - migrations/: goose migrations
*/
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Config holds connection settings.
type Config struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// Store implements timeoff.TxStore on a pgx pool.
type Store struct {
	queries
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ timeoff.TxStore = (*Store)(nil)

// New connects, applies pending migrations and returns the store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store.postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}

	if err := Migrate(connectCtx, cfg.DSN); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres ready", zap.Int32("max_conns", poolCfg.MaxConns))
	return &Store{queries: queries{db: pool}, pool: pool, logger: logger}, nil
}

// Migrate applies the embedded migrations to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open sql: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes pool connections.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTx executes fn within a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store timeoff.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit failed", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db   dbtx
	inTx bool
}

const (
	requestColumns = `id, employee_id, start_date, end_date, day_count, leave_type, reason, status,
		reviewer_id, reviewer_comments, decided_at, created_at, updated_at`
	employeeColumns = `id, username, email, full_name, department, roles, leave_balance::text, created_at, updated_at`

	insertRequestQuery = `INSERT INTO leave_requests (` + requestColumns + `)
		VALUES ($1, $2, $3::date, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	selectRequestQuery = `SELECT ` + requestColumns + ` FROM leave_requests WHERE id = $1`
	updateRequestQuery = `UPDATE leave_requests
		SET status = $1, reviewer_id = $2, reviewer_comments = $3, decided_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7`
	countRequestQuery   = `SELECT COUNT(*) FROM leave_requests WHERE id = $1`
	insertEmployeeQuery = `INSERT INTO employees (id, username, email, full_name, department, roles, leave_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)`
	selectEmployeeQuery           = `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	selectEmployeeByUsernameQuery = `SELECT ` + employeeColumns + ` FROM employees WHERE username = $1`
	existsUsernameQuery           = `SELECT EXISTS(SELECT 1 FROM employees WHERE username = $1)`
	existsEmailQuery              = `SELECT EXISTS(SELECT 1 FROM employees WHERE email = $1)`
	lockEmployeeQuery             = `SELECT pg_advisory_xact_lock(hashtext($1))`
	adjustBalanceQuery            = `UPDATE employees
		SET leave_balance = leave_balance + $2::numeric, updated_at = NOW()
		WHERE id = $1 AND ($3::numeric IS NULL OR leave_balance + $2::numeric >= $3::numeric)
		RETURNING leave_balance::text`
	selectBalanceQuery = `SELECT leave_balance::text FROM employees WHERE id = $1`
)

func (q *queries) CreateRequest(ctx context.Context, req *timeoff.LeaveRequest) error {
	_, err := q.db.Exec(ctx, insertRequestQuery,
		string(req.ID), string(req.EmployeeID), req.StartDate.String(), req.EndDate.String(), req.DayCount,
		string(req.LeaveType), req.Reason, string(req.Status),
		nullableID(req.ReviewerID), req.ReviewerComments, req.DecidedAt,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: leave request %s already exists", generic.ErrConflict, req.ID)
		}
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

// GetRequest locks the row until commit when called inside WithTx.
func (q *queries) GetRequest(ctx context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	query := selectRequestQuery
	if q.inTx {
		query += ` FOR UPDATE`
	}
	req, err := scanRequest(q.db.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: leave request %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	return req, nil
}

func (q *queries) UpdateRequest(ctx context.Context, req *timeoff.LeaveRequest, expected timeoff.Status) error {
	tag, err := q.db.Exec(ctx, updateRequestQuery,
		string(req.Status), nullableID(req.ReviewerID), req.ReviewerComments, req.DecidedAt, req.UpdatedAt,
		string(req.ID), string(expected),
	)
	if err != nil {
		return fmt.Errorf("update leave request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var n int
	if err := q.db.QueryRow(ctx, countRequestQuery, string(req.ID)).Scan(&n); err != nil {
		return fmt.Errorf("update leave request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: leave request %s", generic.ErrNotFound, req.ID)
	}
	return fmt.Errorf("%w: leave request %s is no longer %s", generic.ErrConcurrentModification, req.ID, expected)
}

func (q *queries) ListRequests(ctx context.Context, filter timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	var where []string
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, string(filter.EmployeeID))
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	return q.queryRequests(ctx, query, args...)
}

func (q *queries) FindOverlapping(ctx context.Context, employeeID timeoff.EmployeeID, r generic.DateRange, statuses []timeoff.Status) ([]timeoff.LeaveRequest, error) {
	if q.inTx {
		if _, err := q.db.Exec(ctx, lockEmployeeQuery, string(employeeID)); err != nil {
			return nil, fmt.Errorf("lock employee: %w", err)
		}
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests
		WHERE employee_id = $1 AND start_date <= $2::date AND end_date >= $3::date`
	args := []any{string(employeeID), r.End.String(), r.Start.String()}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		args = append(args, names)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	return q.queryRequests(ctx, query, args...)
}

func (q *queries) queryRequests(ctx context.Context, query string, args ...any) ([]timeoff.LeaveRequest, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leave requests: %w", err)
	}
	defer rows.Close()

	var result []timeoff.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leave request: %w", err)
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func (q *queries) CreateEmployee(ctx context.Context, e *timeoff.Employee) error {
	_, err := q.db.Exec(ctx, insertEmployeeQuery,
		string(e.ID), e.Username, e.Email, e.FullName, e.Department, timeoff.JoinRoles(e.Roles),
		e.LeaveBalance.String(), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: employee %q already exists", generic.ErrConflict, e.Username)
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (q *queries) GetEmployee(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	emp, err := scanEmployee(q.db.QueryRow(ctx, selectEmployeeQuery, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

func (q *queries) GetEmployeeByUsername(ctx context.Context, username string) (*timeoff.Employee, error) {
	emp, err := scanEmployee(q.db.QueryRow(ctx, selectEmployeeByUsernameQuery, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: employee %q", generic.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

func (q *queries) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var found bool
	if err := q.db.QueryRow(ctx, existsUsernameQuery, username).Scan(&found); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return found, nil
}

func (q *queries) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var found bool
	if err := q.db.QueryRow(ctx, existsEmailQuery, email).Scan(&found); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return found, nil
}

func (q *queries) AdjustBalance(ctx context.Context, id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	var floorArg *string
	if floor != nil {
		f := floor.String()
		floorArg = &f
	}

	var raw string
	err := q.db.QueryRow(ctx, adjustBalanceQuery, string(id), delta.String(), floorArg).Scan(&raw)
	if err == nil {
		return decimal.NewFromString(raw)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}

	// No row updated: either the employee is missing or the floor held.
	if err := q.db.QueryRow(ctx, selectBalanceQuery, string(id)).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
		}
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}
	current, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}
	return decimal.Zero, &generic.InsufficientBalanceError{
		EmployeeID: string(id),
		Available:  generic.Days(current),
		Requested:  generic.Days(delta.Neg()),
	}
}

// =============================================================================
// SCANNING
// =============================================================================

func scanRequest(row pgx.Row) (*timeoff.LeaveRequest, error) {
	var (
		req                               timeoff.LeaveRequest
		id, employeeID, leaveType, status string
		start, end                        time.Time
		reviewerID                        *string
	)
	err := row.Scan(
		&id, &employeeID, &start, &end, &req.DayCount, &leaveType, &req.Reason, &status,
		&reviewerID, &req.ReviewerComments, &req.DecidedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.ID = timeoff.RequestID(id)
	req.EmployeeID = timeoff.EmployeeID(employeeID)
	req.LeaveType = timeoff.LeaveType(leaveType)
	req.Status = timeoff.Status(status)
	req.StartDate = generic.DateOf(start)
	req.EndDate = generic.DateOf(end)
	if reviewerID != nil {
		req.ReviewerID = timeoff.EmployeeID(*reviewerID)
	}
	return &req, nil
}

func scanEmployee(row pgx.Row) (*timeoff.Employee, error) {
	var (
		emp            timeoff.Employee
		id, roles, raw string
	)
	err := row.Scan(&id, &emp.Username, &emp.Email, &emp.FullName, &emp.Department, &roles, &raw,
		&emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	emp.ID = timeoff.EmployeeID(id)
	emp.Roles = timeoff.SplitRoles(roles)
	if emp.LeaveBalance, err = decimal.NewFromString(raw); err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return &emp, nil
}

func nullableID(id timeoff.EmployeeID) *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
