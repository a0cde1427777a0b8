/*
request.go - Leave request lifecycle

PURPOSE:
  RequestLedger owns the lifecycle of individual leave requests:
  1. Submission: validate dates, overlap and balance, persist as PENDING
  2. Decision: a reviewer approves (balance debited) or rejects
  3. Cancellation: the owner cancels; approved days are credited back

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Submit ──▶ PENDING ──approve──▶ APPROVED ──cancel──▶ CANCELLED   │
  │               │                  (debit)             (credit)    │
  │               ├──reject───▶ REJECTED                             │
  │               └──cancel───▶ CANCELLED                            │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

SUBMISSION CHECKS (in order, first failure wins):
  1. start date not before today           -> PastDate
  2. end date not before start date        -> InvalidInput
  3. no overlapping request of the owner   -> Conflict
  4. day count within the current balance  -> InsufficientBalance

  Overlap counts requests in ANY status unless the ledger is built with
  WithOverlapIgnoringClosed(true). Submission never touches the balance.

ATOMICITY:
  Every mutating operation runs inside Store.WithTx. The status guard is
  re-checked by UpdateRequest at write time, so two reviewers racing on the
  same PENDING request produce one decision and one AlreadyDecided, and two
  cancellations of the same APPROVED request credit the balance once.

EXAMPLE:
  ledger := timeoff.NewRequestLedger(store, timeoff.WithLogger(logger))

  req, err := ledger.Submit(ctx, "emp-1", timeoff.SubmitInput{
      StartDate: june10, EndDate: june12, LeaveType: timeoff.LeaveAnnual,
  })
  approved, err := ledger.Decide(ctx, "mgr-1", req.ID, timeoff.DecideInput{Status: timeoff.StatusApproved})
  err = ledger.Cancel(ctx, "emp-1", req.ID)

SEE ALSO:
  - transitions.go: The status transition table
  - balance.go: BalanceAccount used for debit/credit
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// maxCancelAttempts bounds retries after a lost compare-and-set on cancel.
const maxCancelAttempts = 3

// =============================================================================
// REQUEST LEDGER
// =============================================================================

type RequestLedger struct {
	store                TxStore
	balances             *BalanceAccount
	clock                generic.Clock
	logger               *zap.Logger
	allotment            decimal.Decimal
	overlapIgnoresClosed bool
}

type LedgerOption func(*RequestLedger)

// WithClock pins the clock used for "today" and timestamps.
func WithClock(c generic.Clock) LedgerOption {
	return func(l *RequestLedger) { l.clock = c }
}

func WithLogger(logger *zap.Logger) LedgerOption {
	return func(l *RequestLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithAnnualAllotment sets the reporting allotment shown by Summarize.
func WithAnnualAllotment(days decimal.Decimal) LedgerOption {
	return func(l *RequestLedger) { l.allotment = days }
}

// WithOverlapIgnoringClosed stops CANCELLED and REJECTED requests from
// blocking new submissions. Off by default.
func WithOverlapIgnoringClosed(ignore bool) LedgerOption {
	return func(l *RequestLedger) { l.overlapIgnoresClosed = ignore }
}

func NewRequestLedger(store TxStore, opts ...LedgerOption) *RequestLedger {
	l := &RequestLedger{
		store:     store,
		clock:     generic.SystemClock,
		logger:    zap.NewNop(),
		allotment: DefaultAnnualAllotment,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.balances = NewBalanceAccount(store, l.allotment, l.logger)
	l.logger = l.logger.Named("timeoff.ledger")
	return l
}

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	StartDate generic.TimePoint
	EndDate   generic.TimePoint
	LeaveType LeaveType
	Reason    string
}

func (in SubmitInput) validate() error {
	if in.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", generic.ErrInvalidInput)
	}
	if in.EndDate.IsZero() {
		return fmt.Errorf("%w: end date is required", generic.ErrInvalidInput)
	}
	if in.LeaveType == "" {
		return fmt.Errorf("%w: leave type is required", generic.ErrInvalidInput)
	}
	if !in.LeaveType.Valid() {
		return fmt.Errorf("%w: unknown leave type %q", generic.ErrInvalidInput, in.LeaveType)
	}
	if utf8.RuneCountInString(in.Reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", generic.ErrInvalidInput, MaxReasonLength)
	}
	return nil
}

// Submit creates a PENDING request for employeeID.
func (l *RequestLedger) Submit(ctx context.Context, employeeID EmployeeID, in SubmitInput) (*LeaveRequest, error) {
	l.logger.Debug("submit leave requested",
		zap.String("employee_id", string(employeeID)),
		zap.String("start_date", in.StartDate.String()),
		zap.String("end_date", in.EndDate.String()),
		zap.String("leave_type", string(in.LeaveType)),
	)

	if err := in.validate(); err != nil {
		l.logger.Warn("submit leave validation failed", zap.Error(err))
		return nil, err
	}

	var created *LeaveRequest
	err := l.store.WithTx(ctx, func(s Store) error {
		emp, err := s.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}

		today := l.clock.Today()
		if in.StartDate.Before(today) {
			return fmt.Errorf("%w: start date %s is before %s", generic.ErrPastDate, in.StartDate, today)
		}

		period := generic.NewDateRange(in.StartDate, in.EndDate)
		if !period.Valid() {
			return fmt.Errorf("%w: end date cannot be before start date", generic.ErrInvalidInput)
		}

		overlapping, err := s.FindOverlapping(ctx, employeeID, period, l.blockingStatuses())
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			existing := overlapping[0]
			return &generic.OverlapError{
				EmployeeID: string(employeeID),
				ExistingID: string(existing.ID),
				Existing:   existing.Range(),
				Requested:  period,
			}
		}

		dayCount := period.Days()
		requested := generic.NewAmountFromInt(dayCount, generic.UnitDays)
		if requested.GreaterThan(emp.Balance()) {
			return &generic.InsufficientBalanceError{
				EmployeeID: string(employeeID),
				Available:  emp.Balance(),
				Requested:  requested,
			}
		}

		now := l.clock.Now()
		req := &LeaveRequest{
			ID:         RequestID(uuid.NewString()),
			EmployeeID: employeeID,
			StartDate:  period.Start,
			EndDate:    period.End,
			DayCount:   dayCount,
			LeaveType:  in.LeaveType,
			Reason:     in.Reason,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.CreateRequest(ctx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, l.fail("submit leave", err, zap.String("employee_id", string(employeeID)))
	}

	l.logger.Info("submit leave success",
		zap.String("request_id", string(created.ID)),
		zap.String("employee_id", string(employeeID)),
		zap.Int("day_count", created.DayCount),
	)
	return created, nil
}

// blockingStatuses returns the statuses that block an overlapping submission.
func (l *RequestLedger) blockingStatuses() []Status {
	if l.overlapIgnoresClosed {
		return []Status{StatusPending, StatusApproved}
	}
	return nil
}

// =============================================================================
// LISTING
// =============================================================================

// ListForEmployee returns the employee's requests, most recent first.
func (l *RequestLedger) ListForEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error) {
	if _, err := l.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, l.fail("list employee leaves", err, zap.String("employee_id", string(employeeID)))
	}
	requests, err := l.store.ListRequests(ctx, RequestFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, l.fail("list employee leaves", err, zap.String("employee_id", string(employeeID)))
	}
	return requests, nil
}

// ListAll returns every request, most recent first.
func (l *RequestLedger) ListAll(ctx context.Context) ([]LeaveRequest, error) {
	requests, err := l.store.ListRequests(ctx, RequestFilter{})
	if err != nil {
		return nil, l.fail("list leaves", err)
	}
	return requests, nil
}

// ListPending returns every PENDING request.
func (l *RequestLedger) ListPending(ctx context.Context) ([]LeaveRequest, error) {
	requests, err := l.store.ListRequests(ctx, RequestFilter{Status: StatusPending})
	if err != nil {
		return nil, l.fail("list pending leaves", err)
	}
	return requests, nil
}

// =============================================================================
// DECIDE
// =============================================================================

type DecideInput struct {
	Status   Status // APPROVED or REJECTED
	Comments string
}

// Decide approves or rejects a PENDING request on behalf of reviewerID.
// Approval debits the owner's balance in the same transaction and fails with
// InsufficientBalance if the balance no longer covers the request.
func (l *RequestLedger) Decide(ctx context.Context, reviewerID EmployeeID, requestID RequestID, in DecideInput) (*LeaveRequest, error) {
	l.logger.Debug("decide leave requested",
		zap.String("request_id", string(requestID)),
		zap.String("reviewer_id", string(reviewerID)),
		zap.String("target_status", string(in.Status)),
	)

	action, ok := decisionAction(in.Status)
	if !ok {
		err := fmt.Errorf("%w: decision must be APPROVED or REJECTED, got %q", generic.ErrInvalidInput, in.Status)
		l.logger.Warn("decide leave validation failed", zap.Error(err))
		return nil, err
	}
	if utf8.RuneCountInString(in.Comments) > MaxCommentsLength {
		return nil, fmt.Errorf("%w: comments exceed %d characters", generic.ErrInvalidInput, MaxCommentsLength)
	}

	var decided *LeaveRequest
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetEmployee(ctx, reviewerID); err != nil {
			return err
		}
		req, err := s.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		current := req.Status
		next, err := NextStatus(current, action)
		if err != nil {
			return err
		}

		now := l.clock.Now()
		req.Status = next
		req.ReviewerID = reviewerID
		req.ReviewerComments = in.Comments
		req.DecidedAt = &now
		req.UpdatedAt = now

		if err := s.UpdateRequest(ctx, req, current); err != nil {
			if errors.Is(err, generic.ErrConcurrentModification) {
				return fmt.Errorf("%w: leave request %s was decided by another reviewer", generic.ErrAlreadyDecided, requestID)
			}
			return err
		}

		if next == StatusApproved {
			if err := l.balances.WithStore(s).Debit(ctx, req.EmployeeID, req.DayCount); err != nil {
				return err
			}
		}

		decided = req
		return nil
	})
	if err != nil {
		return nil, l.fail("decide leave", err,
			zap.String("request_id", string(requestID)),
			zap.String("reviewer_id", string(reviewerID)),
		)
	}

	l.logger.Info("decide leave success",
		zap.String("request_id", string(requestID)),
		zap.String("reviewer_id", string(reviewerID)),
		zap.String("status", string(decided.Status)),
	)
	return decided, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel marks the request CANCELLED. Only the owner may cancel. An APPROVED
// request has its days credited back; other statuses leave the balance alone.
func (l *RequestLedger) Cancel(ctx context.Context, employeeID EmployeeID, requestID RequestID) error {
	l.logger.Debug("cancel leave requested",
		zap.String("request_id", string(requestID)),
		zap.String("employee_id", string(employeeID)),
	)

	var err error
	for attempt := 1; attempt <= maxCancelAttempts; attempt++ {
		err = l.store.WithTx(ctx, func(s Store) error {
			return l.cancelIn(ctx, s, employeeID, requestID)
		})
		if !generic.IsRetryable(err) {
			break
		}
		l.logger.Debug("cancel leave retrying after concurrent update",
			zap.String("request_id", string(requestID)),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return l.fail("cancel leave", err,
			zap.String("request_id", string(requestID)),
			zap.String("employee_id", string(employeeID)),
		)
	}

	l.logger.Info("cancel leave success",
		zap.String("request_id", string(requestID)),
		zap.String("employee_id", string(employeeID)),
	)
	return nil
}

func (l *RequestLedger) cancelIn(ctx context.Context, s Store, employeeID EmployeeID, requestID RequestID) error {
	if _, err := s.GetEmployee(ctx, employeeID); err != nil {
		return err
	}
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.EmployeeID != employeeID {
		return fmt.Errorf("%w: you can only cancel your own leave requests", generic.ErrForbidden)
	}

	current := req.Status
	next, err := NextStatus(current, ActionCancel)
	if err != nil {
		return err
	}

	if current == StatusApproved {
		if err := l.balances.WithStore(s).Credit(ctx, req.EmployeeID, req.DayCount); err != nil {
			return err
		}
	}

	req.Status = next
	req.UpdatedAt = l.clock.Now()
	return s.UpdateRequest(ctx, req, current)
}

// =============================================================================
// SUMMARIZE
// =============================================================================

// Summarize returns the employee's balance summary from one transaction.
func (l *RequestLedger) Summarize(ctx context.Context, employeeID EmployeeID) (*Summary, error) {
	var summary *Summary
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		summary, err = l.balances.WithStore(s).Summarize(ctx, employeeID)
		return err
	})
	if err != nil {
		return nil, l.fail("summarize balance", err, zap.String("employee_id", string(employeeID)))
	}
	return summary, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// fail logs err at the level its kind deserves and wraps storage failures.
func (l *RequestLedger) fail(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.Error(err))
	if generic.IsClientError(err) {
		l.logger.Warn(op+" rejected", fields...)
		return err
	}
	l.logger.Error(op+" failed", fields...)
	return generic.Internal(op, err)
}
