// Package storetest holds the behaviour every timeoff.TxStore must share.
// Each store package runs it from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) timeoff.TxStore

var base = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

// Run executes the shared store behaviour against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmployeeRoundTrip", func(t *testing.T) { testEmployeeRoundTrip(t, newStore(t)) })
	t.Run("EmployeeUniqueness", func(t *testing.T) { testEmployeeUniqueness(t, newStore(t)) })
	t.Run("RequestRoundTrip", func(t *testing.T) { testRequestRoundTrip(t, newStore(t)) })
	t.Run("UpdateRequestComparesStatus", func(t *testing.T) { testUpdateRequestComparesStatus(t, newStore(t)) })
	t.Run("ListRequestsOrderAndFilter", func(t *testing.T) { testListRequests(t, newStore(t)) })
	t.Run("FindOverlapping", func(t *testing.T) { testFindOverlapping(t, newStore(t)) })
	t.Run("AdjustBalance", func(t *testing.T) { testAdjustBalance(t, newStore(t)) })
	t.Run("BalanceKeepsFullPrecision", func(t *testing.T) { testBalanceKeepsFullPrecision(t, newStore(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollsBack(t, newStore(t)) })
	t.Run("ConcurrentAdjustments", func(t *testing.T) { testConcurrentAdjustments(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

func employee(id, username string) *timeoff.Employee {
	return &timeoff.Employee{
		ID:           timeoff.EmployeeID(id),
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		Department:   "Engineering",
		Roles:        []timeoff.Role{timeoff.RoleEmployee},
		LeaveBalance: decimal.NewFromInt(20),
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func request(id string, owner timeoff.EmployeeID, start, end generic.TimePoint, createdAt time.Time) *timeoff.LeaveRequest {
	r := generic.NewDateRange(start, end)
	return &timeoff.LeaveRequest{
		ID:         timeoff.RequestID(id),
		EmployeeID: owner,
		StartDate:  start,
		EndDate:    end,
		DayCount:   r.Days(),
		LeaveType:  timeoff.LeaveAnnual,
		Reason:     "trip",
		Status:     timeoff.StatusPending,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func june(day int) generic.TimePoint {
	return generic.NewTimePoint(2024, time.June, day)
}

func mustCreateEmployee(t *testing.T, s timeoff.Store, e *timeoff.Employee) {
	t.Helper()
	require.NoError(t, s.CreateEmployee(context.Background(), e))
}

func mustCreateRequest(t *testing.T, s timeoff.Store, r *timeoff.LeaveRequest) {
	t.Helper()
	require.NoError(t, s.CreateRequest(context.Background(), r))
}

func ids(requests []timeoff.LeaveRequest) []timeoff.RequestID {
	out := make([]timeoff.RequestID, len(requests))
	for i, r := range requests {
		out[i] = r.ID
	}
	return out
}

// =============================================================================
// CASES
// =============================================================================

func testEmployeeRoundTrip(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	e := employee("emp-1", "alice")
	e.Roles = []timeoff.Role{timeoff.RoleEmployee, timeoff.RoleManager}
	mustCreateEmployee(t, s, e)

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "Engineering", got.Department)
	assert.Equal(t, e.Roles, got.Roles)
	assert.True(t, got.LeaveBalance.Equal(decimal.NewFromInt(20)))
	assert.True(t, got.CreatedAt.Equal(base))

	byName, err := s.GetEmployeeByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, e.ID, byName.ID)

	_, err = s.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = s.GetEmployeeByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	found, err := s.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = s.ExistsByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = s.ExistsByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func testEmployeeUniqueness(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))

	dupUsername := employee("emp-2", "alice")
	dupUsername.Email = "other@example.com"
	assert.ErrorIs(t, s.CreateEmployee(ctx, dupUsername), generic.ErrConflict)

	dupEmail := employee("emp-3", "bob")
	dupEmail.Email = "alice@example.com"
	assert.ErrorIs(t, s.CreateEmployee(ctx, dupEmail), generic.ErrConflict)
}

func testRequestRoundTrip(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	mustCreateEmployee(t, s, employee("mgr-1", "manager"))

	r := request("req-1", "emp-1", june(10), june(12), base)
	mustCreateRequest(t, s, r)

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.EmployeeID("emp-1"), got.EmployeeID)
	assert.True(t, got.StartDate.Equal(june(10)))
	assert.True(t, got.EndDate.Equal(june(12)))
	assert.Equal(t, 3, got.DayCount)
	assert.Equal(t, timeoff.LeaveAnnual, got.LeaveType)
	assert.Equal(t, "trip", got.Reason)
	assert.Equal(t, timeoff.StatusPending, got.Status)
	assert.False(t, got.HasReviewer())
	assert.Nil(t, got.DecidedAt)

	decidedAt := base.Add(time.Hour)
	got.Status = timeoff.StatusApproved
	got.ReviewerID = "mgr-1"
	got.ReviewerComments = "ok"
	got.DecidedAt = &decidedAt
	got.UpdatedAt = decidedAt
	require.NoError(t, s.UpdateRequest(ctx, got, timeoff.StatusPending))

	again, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, again.Status)
	assert.Equal(t, timeoff.EmployeeID("mgr-1"), again.ReviewerID)
	assert.Equal(t, "ok", again.ReviewerComments)
	require.NotNil(t, again.DecidedAt)
	assert.True(t, again.DecidedAt.Equal(decidedAt))

	_, err = s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testUpdateRequestComparesStatus(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	r := request("req-1", "emp-1", june(10), june(12), base)
	mustCreateRequest(t, s, r)

	r.Status = timeoff.StatusCancelled
	require.NoError(t, s.UpdateRequest(ctx, r, timeoff.StatusPending))

	r.Status = timeoff.StatusApproved
	err := s.UpdateRequest(ctx, r, timeoff.StatusPending)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusCancelled, got.Status)

	missing := request("req-x", "emp-1", june(10), june(12), base)
	assert.ErrorIs(t, s.UpdateRequest(ctx, missing, timeoff.StatusPending), generic.ErrNotFound)
}

func testListRequests(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	mustCreateEmployee(t, s, employee("emp-2", "bob"))

	mustCreateRequest(t, s, request("a", "emp-1", june(3), june(3), base))
	mustCreateRequest(t, s, request("b", "emp-1", june(4), june(4), base.Add(time.Minute)))
	// Same timestamp as b: insertion order breaks the tie.
	mustCreateRequest(t, s, request("c", "emp-2", june(4), june(4), base.Add(time.Minute)))
	mustCreateRequest(t, s, request("d", "emp-1", june(5), june(5), base.Add(2*time.Minute)))

	all, err := s.ListRequests(ctx, timeoff.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, []timeoff.RequestID{"d", "c", "b", "a"}, ids(all))

	own, err := s.ListRequests(ctx, timeoff.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Equal(t, []timeoff.RequestID{"d", "b", "a"}, ids(own))

	b, err := s.GetRequest(ctx, "b")
	require.NoError(t, err)
	b.Status = timeoff.StatusRejected
	require.NoError(t, s.UpdateRequest(ctx, b, timeoff.StatusPending))

	pending, err := s.ListRequests(ctx, timeoff.RequestFilter{Status: timeoff.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []timeoff.RequestID{"d", "c", "a"}, ids(pending))

	ownPending, err := s.ListRequests(ctx, timeoff.RequestFilter{EmployeeID: "emp-1", Status: timeoff.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []timeoff.RequestID{"d", "a"}, ids(ownPending))

	none, err := s.ListRequests(ctx, timeoff.RequestFilter{EmployeeID: "emp-3"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testFindOverlapping(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	mustCreateEmployee(t, s, employee("emp-2", "bob"))

	existing := request("r1", "emp-1", june(10), june(12), base)
	mustCreateRequest(t, s, existing)
	mustCreateRequest(t, s, request("r2", "emp-2", june(10), june(12), base))

	cases := []struct {
		name    string
		r       generic.DateRange
		overlap bool
	}{
		{"start inside", generic.NewDateRange(june(8), june(10)), true},
		{"end inside", generic.NewDateRange(june(12), june(14)), true},
		{"contained", generic.NewDateRange(june(11), june(11)), true},
		{"containing", generic.NewDateRange(june(1), june(30)), true},
		{"day before", generic.NewDateRange(june(5), june(9)), false},
		{"day after", generic.NewDateRange(june(13), june(15)), false},
	}
	for _, tc := range cases {
		got, err := s.FindOverlapping(ctx, "emp-1", tc.r, nil)
		require.NoError(t, err, tc.name)
		if tc.overlap {
			assert.Equal(t, []timeoff.RequestID{"r1"}, ids(got), tc.name)
		} else {
			assert.Empty(t, got, tc.name)
		}
	}

	existing.Status = timeoff.StatusCancelled
	require.NoError(t, s.UpdateRequest(ctx, existing, timeoff.StatusPending))

	anyStatus, err := s.FindOverlapping(ctx, "emp-1", generic.NewDateRange(june(11), june(11)), nil)
	require.NoError(t, err)
	assert.Len(t, anyStatus, 1)

	open, err := s.FindOverlapping(ctx, "emp-1", generic.NewDateRange(june(11), june(11)),
		[]timeoff.Status{timeoff.StatusPending, timeoff.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func testAdjustBalance(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	floor := decimal.Zero

	balance, err := s.AdjustBalance(ctx, "emp-1", decimal.NewFromInt(-3), &floor)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(17)))

	balance, err = s.AdjustBalance(ctx, "emp-1", decimal.RequireFromString("0.5"), nil)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("17.5")))

	_, err = s.AdjustBalance(ctx, "emp-1", decimal.NewFromInt(-18), &floor)
	var ibe *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.True(t, ibe.Available.Value.Equal(decimal.RequireFromString("17.5")))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, got.LeaveBalance.Equal(decimal.RequireFromString("17.5")), "rejected adjustment leaves balance")

	_, err = s.AdjustBalance(ctx, "missing", decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testBalanceKeepsFullPrecision(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	e := employee("emp-1", "alice")
	e.LeaveBalance = decimal.RequireFromString("20.125")
	mustCreateEmployee(t, s, e)

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "20.125", got.LeaveBalance.String())

	balance, err := s.AdjustBalance(ctx, "emp-1", decimal.RequireFromString("-0.0005"), nil)
	require.NoError(t, err)
	assert.Equal(t, "20.1245", balance.String())

	got, err = s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "20.1245", got.LeaveBalance.String())
}

func testWithTxRollsBack(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx timeoff.Store) error {
		if err := tx.CreateRequest(ctx, request("r1", "emp-1", june(10), june(12), base)); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, "emp-1", decimal.NewFromInt(-3), nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetRequest(ctx, "r1")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, got.LeaveBalance.Equal(decimal.NewFromInt(20)))

	err = s.WithTx(ctx, func(tx timeoff.Store) error {
		return tx.CreateRequest(ctx, request("r2", "emp-1", june(10), june(12), base))
	})
	require.NoError(t, err)
	_, err = s.GetRequest(ctx, "r2")
	assert.NoError(t, err)
}

func testConcurrentAdjustments(t *testing.T, s timeoff.TxStore) {
	ctx := context.Background()
	mustCreateEmployee(t, s, employee("emp-1", "alice"))
	floor := decimal.Zero

	// 30 one-day debits against 20 days: exactly 20 succeed.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustBalance(ctx, "emp-1", decimal.NewFromInt(-1), &floor)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, ok)
	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, got.LeaveBalance.IsZero())
}
