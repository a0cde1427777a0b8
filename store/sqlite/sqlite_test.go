package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/store/storetest"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewWithDB(db), mock
}

// =============================================================================
// SHARED BEHAVIOUR
// =============================================================================

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) timeoff.TxStore {
		return newTestStore(t)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: a file-backed store with one employee and one request
	// WHEN: the store is closed and reopened
	// THEN: both records are still there
	path := filepath.Join(t.TempDir(), "leave.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateEmployee(ctx, &timeoff.Employee{
		ID: "emp-1", Username: "alice", Email: "alice@example.com", FullName: "Alice",
		Roles: []timeoff.Role{timeoff.RoleEmployee}, LeaveBalance: decimal.NewFromInt(20),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	emp, err := reopened.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", emp.Username)
}

// =============================================================================
// LEDGER OVER SQLITE
// =============================================================================

func TestLedgerOverSQLite_Walkthrough(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := generic.FixedClock(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ledger := timeoff.NewRequestLedger(store, timeoff.WithClock(clock))
	directory := timeoff.NewDirectory(store, timeoff.WithDirectoryClock(clock))

	emp, err := directory.Register(ctx, timeoff.NewEmployee{Username: "employee", Email: "e@example.com", FullName: "E"})
	require.NoError(t, err)
	mgr, err := directory.Register(ctx, timeoff.NewEmployee{
		Username: "manager", Email: "m@example.com", FullName: "M",
		Roles: []timeoff.Role{timeoff.RoleManager},
	})
	require.NoError(t, err)

	req, err := ledger.Submit(ctx, emp.ID, timeoff.SubmitInput{
		StartDate: generic.NewTimePoint(2024, time.June, 10),
		EndDate:   generic.NewTimePoint(2024, time.June, 12),
		LeaveType: timeoff.LeaveAnnual,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, req.DayCount)

	_, err = ledger.Decide(ctx, mgr.ID, req.ID, timeoff.DecideInput{Status: timeoff.StatusApproved})
	require.NoError(t, err)

	summary, err := ledger.Summarize(ctx, emp.ID)
	require.NoError(t, err)
	assert.True(t, summary.RemainingBalance.Value.Equal(decimal.NewFromInt(17)))
	assert.True(t, summary.UsedDays.Value.Equal(decimal.NewFromInt(3)))

	_, err = ledger.Decide(ctx, mgr.ID, req.ID, timeoff.DecideInput{Status: timeoff.StatusRejected})
	assert.ErrorIs(t, err, generic.ErrAlreadyDecided)

	require.NoError(t, ledger.Cancel(ctx, emp.ID, req.ID))

	summary, err = ledger.Summarize(ctx, emp.ID)
	require.NoError(t, err)
	assert.True(t, summary.RemainingBalance.Value.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 0, summary.PendingCount)
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestWithTx_BeginFails(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	err := store.WithTx(context.Background(), func(timeoff.Store) error {
		t.Fatal("fn must not run")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")

	err := store.WithTx(context.Background(), func(timeoff.Store) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitFails(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := store.WithTx(context.Background(), func(timeoff.Store) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequest_LostRace(t *testing.T) {
	// GIVEN: the guarded UPDATE matches no row but the request exists
	// THEN: ErrConcurrentModification
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE leave_requests`).
		WithArgs("CANCELLED", nil, "", nil, sqlmock.AnyArg(), "req-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM leave_requests WHERE id = \?`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := store.UpdateRequest(context.Background(), &timeoff.LeaveRequest{
		ID: "req-1", Status: timeoff.StatusCancelled, UpdatedAt: time.Now(),
	}, timeoff.StatusPending)

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_StorageFailureIsInternal(t *testing.T) {
	// GIVEN: the employee lookup fails with a driver error
	// WHEN: submitting through the ledger
	// THEN: the error is Internal and the transaction is rolled back
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM employees WHERE id = \?`).
		WithArgs("emp-1").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	ledger := timeoff.NewRequestLedger(store,
		timeoff.WithClock(generic.FixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))))

	_, err := ledger.Submit(context.Background(), "emp-1", timeoff.SubmitInput{
		StartDate: generic.NewTimePoint(2024, time.June, 10),
		EndDate:   generic.NewTimePoint(2024, time.June, 12),
		LeaveType: timeoff.LeaveAnnual,
	})

	require.Error(t, err)
	assert.Equal(t, generic.KindInternal, generic.KindOf(err))
	var internal *generic.InternalError
	assert.True(t, errors.As(err, &internal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmployee_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM employees WHERE id = \?`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetEmployee(context.Background(), "ghost")

	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
