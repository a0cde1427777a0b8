package timeoff

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// DefaultAnnualAllotment is the reporting-only yearly allotment.
var DefaultAnnualAllotment = decimal.NewFromInt(20)

// =============================================================================
// BALANCE ACCOUNT - Debit, credit and summarize an employee's leave balance
// =============================================================================

// BalanceAccount owns the mutation path of Employee.LeaveBalance.
// Balance changes always go through Store.AdjustBalance; nothing assigns
// the field directly.
type BalanceAccount struct {
	store     Store
	allotment decimal.Decimal
	logger    *zap.Logger
}

func NewBalanceAccount(store Store, allotment decimal.Decimal, logger *zap.Logger) *BalanceAccount {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allotment.IsZero() {
		allotment = DefaultAnnualAllotment
	}
	return &BalanceAccount{store: store, allotment: allotment, logger: logger.Named("timeoff.balance")}
}

// WithStore returns a copy bound to s, typically a transaction view.
func (b *BalanceAccount) WithStore(s Store) *BalanceAccount {
	return &BalanceAccount{store: s, allotment: b.allotment, logger: b.logger}
}

// Debit subtracts days from the employee's balance. The balance may not go
// negative: an approval that no longer fits fails with InsufficientBalance.
func (b *BalanceAccount) Debit(ctx context.Context, id EmployeeID, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: debit must be positive, got %d", generic.ErrInvalidInput, days)
	}
	floor := decimal.Zero
	balance, err := b.store.AdjustBalance(ctx, id, decimal.NewFromInt(int64(-days)), &floor)
	if err != nil {
		if generic.IsClientError(err) {
			b.logger.Warn("debit rejected", zap.String("employee_id", string(id)), zap.Int("days", days), zap.Error(err))
			return err
		}
		b.logger.Error("debit failed", zap.String("employee_id", string(id)), zap.Error(err))
		return generic.Internal("debit balance", err)
	}
	b.logger.Debug("balance debited",
		zap.String("employee_id", string(id)),
		zap.Int("days", days),
		zap.String("balance", balance.String()),
	)
	return nil
}

// Credit adds days back, used when an approved request is cancelled.
func (b *BalanceAccount) Credit(ctx context.Context, id EmployeeID, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: credit must be positive, got %d", generic.ErrInvalidInput, days)
	}
	balance, err := b.store.AdjustBalance(ctx, id, decimal.NewFromInt(int64(days)), nil)
	if err != nil {
		if generic.IsClientError(err) {
			return err
		}
		b.logger.Error("credit failed", zap.String("employee_id", string(id)), zap.Error(err))
		return generic.Internal("credit balance", err)
	}
	b.logger.Debug("balance credited",
		zap.String("employee_id", string(id)),
		zap.Int("days", days),
		zap.String("balance", balance.String()),
	)
	return nil
}

// =============================================================================
// SUMMARY - What the employee sees
// =============================================================================

type Summary struct {
	EmployeeID       EmployeeID
	TotalAllotment   generic.Amount
	UsedDays         generic.Amount
	RemainingBalance generic.Amount
	PendingCount     int
}

// Summarize recomputes the summary from the stored requests on every call.
func (b *BalanceAccount) Summarize(ctx context.Context, id EmployeeID) (*Summary, error) {
	emp, err := b.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, generic.Internal("summarize: load employee", err)
	}

	// One query so used and pending come from the same snapshot.
	requests, err := b.store.ListRequests(ctx, RequestFilter{EmployeeID: id})
	if err != nil {
		b.logger.Error("summarize list requests failed", zap.String("employee_id", string(id)), zap.Error(err))
		return nil, generic.Internal("summarize: list requests", err)
	}

	used := 0
	pending := 0
	for _, r := range requests {
		switch r.Status {
		case StatusApproved:
			used += r.DayCount
		case StatusPending:
			pending++
		}
	}

	return &Summary{
		EmployeeID:       id,
		TotalAllotment:   generic.Days(b.allotment),
		UsedDays:         generic.NewAmountFromInt(used, generic.UnitDays),
		RemainingBalance: emp.Balance(),
		PendingCount:     pending,
	}, nil
}
