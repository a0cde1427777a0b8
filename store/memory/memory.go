// Package memory provides an in-memory timeoff.TxStore for tests and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	requests  map[timeoff.RequestID]storedRequest
	employees map[timeoff.EmployeeID]timeoff.Employee
	seq       int64
}

// storedRequest keeps the insertion sequence used as ordering tie-breaker.
type storedRequest struct {
	req timeoff.LeaveRequest
	seq int64
}

var _ timeoff.TxStore = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		requests:  make(map[timeoff.RequestID]storedRequest),
		employees: make(map[timeoff.EmployeeID]timeoff.Employee),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a single lock and a snapshot +
// rollback on error. Transactions are fully serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) CreateRequest(ctx context.Context, req *timeoff.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequestLocked(req)
}

func (m *Memory) GetRequest(ctx context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) UpdateRequest(ctx context.Context, req *timeoff.LeaveRequest, expected timeoff.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(req, expected)
}

func (m *Memory) ListRequests(ctx context.Context, filter timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(filter), nil
}

func (m *Memory) FindOverlapping(ctx context.Context, employeeID timeoff.EmployeeID, r generic.DateRange, statuses []timeoff.Status) ([]timeoff.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlappingLocked(employeeID, r, statuses), nil
}

func (m *Memory) CreateEmployee(ctx context.Context, e *timeoff.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEmployeeLocked(e)
}

func (m *Memory) GetEmployee(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) GetEmployeeByUsername(ctx context.Context, username string) (*timeoff.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeByUsernameLocked(username)
}

func (m *Memory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.getEmployeeByUsernameLocked(username)
	return err == nil, nil
}

func (m *Memory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emailTakenLocked(email), nil
}

func (m *Memory) AdjustBalance(ctx context.Context, id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustBalanceLocked(id, delta, floor)
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) createRequestLocked(req *timeoff.LeaveRequest) error {
	if _, ok := m.requests[req.ID]; ok {
		return fmt.Errorf("%w: leave request %s already exists", generic.ErrConflict, req.ID)
	}
	m.seq++
	m.requests[req.ID] = storedRequest{req: copyRequest(*req), seq: m.seq}
	return nil
}

func (m *Memory) getRequestLocked(id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	stored, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: leave request %s", generic.ErrNotFound, id)
	}
	req := copyRequest(stored.req)
	return &req, nil
}

func (m *Memory) updateRequestLocked(req *timeoff.LeaveRequest, expected timeoff.Status) error {
	stored, ok := m.requests[req.ID]
	if !ok {
		return fmt.Errorf("%w: leave request %s", generic.ErrNotFound, req.ID)
	}
	if stored.req.Status != expected {
		return fmt.Errorf("%w: leave request %s is %s, expected %s",
			generic.ErrConcurrentModification, req.ID, stored.req.Status, expected)
	}
	stored.req = copyRequest(*req)
	m.requests[req.ID] = stored
	return nil
}

func (m *Memory) listRequestsLocked(filter timeoff.RequestFilter) []timeoff.LeaveRequest {
	matched := make([]storedRequest, 0, len(m.requests))
	for _, stored := range m.requests {
		if filter.EmployeeID != "" && stored.req.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && stored.req.Status != filter.Status {
			continue
		}
		matched = append(matched, stored)
	}
	sortRecentFirst(matched)

	result := make([]timeoff.LeaveRequest, len(matched))
	for i, stored := range matched {
		result[i] = copyRequest(stored.req)
	}
	return result
}

func (m *Memory) findOverlappingLocked(employeeID timeoff.EmployeeID, r generic.DateRange, statuses []timeoff.Status) []timeoff.LeaveRequest {
	var matched []storedRequest
	for _, stored := range m.requests {
		if stored.req.EmployeeID != employeeID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, stored.req.Status) {
			continue
		}
		if r.Overlaps(stored.req.Range()) {
			matched = append(matched, stored)
		}
	}
	sortRecentFirst(matched)

	result := make([]timeoff.LeaveRequest, len(matched))
	for i, stored := range matched {
		result[i] = copyRequest(stored.req)
	}
	return result
}

func (m *Memory) createEmployeeLocked(e *timeoff.Employee) error {
	if _, ok := m.employees[e.ID]; ok {
		return fmt.Errorf("%w: employee %s already exists", generic.ErrConflict, e.ID)
	}
	if _, err := m.getEmployeeByUsernameLocked(e.Username); err == nil {
		return fmt.Errorf("%w: username %q is already taken", generic.ErrConflict, e.Username)
	}
	if m.emailTakenLocked(e.Email) {
		return fmt.Errorf("%w: email %q is already registered", generic.ErrConflict, e.Email)
	}
	m.employees[e.ID] = copyEmployee(*e)
	return nil
}

func (m *Memory) getEmployeeLocked(id timeoff.EmployeeID) (*timeoff.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
	}
	e = copyEmployee(e)
	return &e, nil
}

func (m *Memory) getEmployeeByUsernameLocked(username string) (*timeoff.Employee, error) {
	for _, e := range m.employees {
		if e.Username == username {
			e = copyEmployee(e)
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: employee %q", generic.ErrNotFound, username)
}

func (m *Memory) emailTakenLocked(email string) bool {
	for _, e := range m.employees {
		if e.Email == email {
			return true
		}
	}
	return false
}

func (m *Memory) adjustBalanceLocked(id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	e, ok := m.employees[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: employee %s", generic.ErrNotFound, id)
	}
	next := e.LeaveBalance.Add(delta)
	if floor != nil && next.LessThan(*floor) {
		return decimal.Zero, &generic.InsufficientBalanceError{
			EmployeeID: string(id),
			Available:  generic.Days(e.LeaveBalance),
			Requested:  generic.Days(delta.Neg()),
		}
	}
	e.LeaveBalance = next
	m.employees[id] = e
	return next, nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

type memorySnapshot struct {
	requests  map[timeoff.RequestID]storedRequest
	employees map[timeoff.EmployeeID]timeoff.Employee
	seq       int64
}

func (m *Memory) snapshot() memorySnapshot {
	reqs := make(map[timeoff.RequestID]storedRequest, len(m.requests))
	for k, v := range m.requests {
		reqs[k] = v
	}
	emps := make(map[timeoff.EmployeeID]timeoff.Employee, len(m.employees))
	for k, v := range m.employees {
		emps[k] = v
	}
	return memorySnapshot{requests: reqs, employees: emps, seq: m.seq}
}

func (m *Memory) restore(s memorySnapshot) {
	m.requests = s.requests
	m.employees = s.employees
	m.seq = s.seq
}

// =============================================================================
// TRANSACTION VIEW - Runs under the lock taken by WithTx
// =============================================================================

type txView struct {
	m *Memory
}

func (tv *txView) CreateRequest(_ context.Context, req *timeoff.LeaveRequest) error {
	return tv.m.createRequestLocked(req)
}

func (tv *txView) GetRequest(_ context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	return tv.m.getRequestLocked(id)
}

func (tv *txView) UpdateRequest(_ context.Context, req *timeoff.LeaveRequest, expected timeoff.Status) error {
	return tv.m.updateRequestLocked(req, expected)
}

func (tv *txView) ListRequests(_ context.Context, filter timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	return tv.m.listRequestsLocked(filter), nil
}

func (tv *txView) FindOverlapping(_ context.Context, employeeID timeoff.EmployeeID, r generic.DateRange, statuses []timeoff.Status) ([]timeoff.LeaveRequest, error) {
	return tv.m.findOverlappingLocked(employeeID, r, statuses), nil
}

func (tv *txView) CreateEmployee(_ context.Context, e *timeoff.Employee) error {
	return tv.m.createEmployeeLocked(e)
}

func (tv *txView) GetEmployee(_ context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	return tv.m.getEmployeeLocked(id)
}

func (tv *txView) GetEmployeeByUsername(_ context.Context, username string) (*timeoff.Employee, error) {
	return tv.m.getEmployeeByUsernameLocked(username)
}

func (tv *txView) ExistsByUsername(_ context.Context, username string) (bool, error) {
	_, err := tv.m.getEmployeeByUsernameLocked(username)
	return err == nil, nil
}

func (tv *txView) ExistsByEmail(_ context.Context, email string) (bool, error) {
	return tv.m.emailTakenLocked(email), nil
}

func (tv *txView) AdjustBalance(_ context.Context, id timeoff.EmployeeID, delta decimal.Decimal, floor *decimal.Decimal) (decimal.Decimal, error) {
	return tv.m.adjustBalanceLocked(id, delta, floor)
}

// =============================================================================
// HELPERS
// =============================================================================

func sortRecentFirst(rs []storedRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].req.CreatedAt.Equal(rs[j].req.CreatedAt) {
			return rs[i].req.CreatedAt.After(rs[j].req.CreatedAt)
		}
		return rs[i].seq > rs[j].seq
	})
}

func containsStatus(statuses []timeoff.Status, s timeoff.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func copyRequest(r timeoff.LeaveRequest) timeoff.LeaveRequest {
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		r.DecidedAt = &t
	}
	return r
}

func copyEmployee(e timeoff.Employee) timeoff.Employee {
	e.Roles = append([]timeoff.Role(nil), e.Roles...)
	return e
}
