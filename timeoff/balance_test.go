package timeoff_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

func TestBalanceAccount_DebitFloorsAtZero(t *testing.T) {
	// GIVEN: an employee with 5 days
	f := newFixture(t)
	emp := f.employee(t, "alice", 5)
	account := timeoff.NewBalanceAccount(f.store, decimal.Zero, nil)
	ctx := context.Background()

	// WHEN: debiting exactly the balance, then one more day
	require.NoError(t, account.Debit(ctx, emp.ID, 5))
	err := account.Debit(ctx, emp.ID, 1)

	// THEN: the second debit fails and leaves the balance at zero
	var ibe *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Value.IsZero())
	assert.True(t, ibe.Requested.Value.Equal(decimal.NewFromInt(1)))
	assert.True(t, f.balance(t, emp.ID).IsZero())
}

func TestBalanceAccount_CreditHasNoCeiling(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "alice", 20)
	account := timeoff.NewBalanceAccount(f.store, decimal.Zero, nil)

	require.NoError(t, account.Credit(context.Background(), emp.ID, 4))

	assert.True(t, f.balance(t, emp.ID).Equal(decimal.NewFromInt(24)))
}

func TestBalanceAccount_RejectsNonPositiveDays(t *testing.T) {
	f := newFixture(t)
	emp := f.employee(t, "alice", 20)
	account := timeoff.NewBalanceAccount(f.store, decimal.Zero, nil)
	ctx := context.Background()

	assert.ErrorIs(t, account.Debit(ctx, emp.ID, 0), generic.ErrInvalidInput)
	assert.ErrorIs(t, account.Credit(ctx, emp.ID, -2), generic.ErrInvalidInput)
	assert.ErrorIs(t, account.Debit(ctx, "ghost", 1), generic.ErrNotFound)
}

func TestBalanceAccount_SummarizeCountsByStatus(t *testing.T) {
	// GIVEN: one approved (3 days), one pending, one rejected request
	f := newFixture(t)
	emp := f.employee(t, "alice", 20)
	mgr := f.employee(t, "manager", 20, timeoff.RoleManager)
	ctx := context.Background()

	approved := f.submit(t, emp.ID, june(10), june(12))
	_, err := f.ledger.Decide(ctx, mgr.ID, approved.ID, timeoff.DecideInput{Status: timeoff.StatusApproved})
	require.NoError(t, err)
	rejected := f.submit(t, emp.ID, june(20), june(20))
	_, err = f.ledger.Decide(ctx, mgr.ID, rejected.ID, timeoff.DecideInput{Status: timeoff.StatusRejected})
	require.NoError(t, err)
	f.submit(t, emp.ID, june(24), june(25))

	// WHEN
	summary, err := timeoff.NewBalanceAccount(f.store, decimal.Zero, nil).Summarize(ctx, emp.ID)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, emp.ID, summary.EmployeeID)
	assert.True(t, summary.TotalAllotment.Value.Equal(timeoff.DefaultAnnualAllotment))
	assert.True(t, summary.UsedDays.Value.Equal(decimal.NewFromInt(3)))
	assert.True(t, summary.RemainingBalance.Value.Equal(decimal.NewFromInt(17)))
	assert.Equal(t, 1, summary.PendingCount)
}
