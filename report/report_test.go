package report_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/report"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/timeoff"
	"github.com/xuri/excelize/v2"
)

type countingLookup struct {
	dir   *timeoff.Directory
	calls int
}

func (c *countingLookup) Get(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	c.calls++
	return c.dir.Get(ctx, id)
}

func TestExport_OneRowPerRequest(t *testing.T) {
	// GIVEN: two requests from one employee, one approved by a manager
	ctx := context.Background()
	store := memory.New()
	clock := generic.FixedClock(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))
	ledger := timeoff.NewRequestLedger(store, timeoff.WithClock(clock))
	dir := timeoff.NewDirectory(store, timeoff.WithDirectoryClock(clock))

	emp, err := dir.Register(ctx, timeoff.NewEmployee{
		Username: "alice", Email: "alice@example.com", FullName: "Alice Smith", Department: "Engineering",
	})
	require.NoError(t, err)
	mgr, err := dir.Register(ctx, timeoff.NewEmployee{
		Username: "bob", Email: "bob@example.com", FullName: "Bob Jones", Roles: []timeoff.Role{timeoff.RoleManager},
	})
	require.NoError(t, err)

	first, err := ledger.Submit(ctx, emp.ID, timeoff.SubmitInput{
		StartDate: generic.NewTimePoint(2024, time.June, 10),
		EndDate:   generic.NewTimePoint(2024, time.June, 12),
		LeaveType: timeoff.LeaveAnnual,
		Reason:    "Holiday",
	})
	require.NoError(t, err)
	_, err = ledger.Decide(ctx, mgr.ID, first.ID, timeoff.DecideInput{Status: timeoff.StatusApproved, Comments: "Enjoy"})
	require.NoError(t, err)
	_, err = ledger.Submit(ctx, emp.ID, timeoff.SubmitInput{
		StartDate: generic.NewTimePoint(2024, time.July, 1),
		EndDate:   generic.NewTimePoint(2024, time.July, 1),
		LeaveType: timeoff.LeaveSick,
	})
	require.NoError(t, err)

	reqs, err := ledger.ListAll(ctx)
	require.NoError(t, err)

	// WHEN: exporting
	lookup := &countingLookup{dir: dir}
	rows, err := report.Enrich(ctx, lookup, reqs)
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls, "each employee is resolved once")

	var buf bytes.Buffer
	require.NoError(t, report.WriteLeaveRequests(&buf, rows))

	// THEN: the workbook has a header and one row per request
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Request ID", got[0][0])
	assert.Equal(t, "Submitted At", got[0][13])

	approved := got[2]
	assert.Equal(t, string(first.ID), approved[0])
	assert.Equal(t, "Alice Smith", approved[1])
	assert.Equal(t, "Engineering", approved[3])
	assert.Equal(t, "2024-06-10", approved[5])
	assert.Equal(t, "3", approved[7])
	assert.Equal(t, "APPROVED", approved[8])
	assert.Equal(t, "Bob Jones", approved[10])
	assert.Equal(t, "Enjoy", approved[11])

	pending := got[1]
	assert.Equal(t, "SICK", pending[4])
	assert.Equal(t, "PENDING", pending[8])
}

func TestEnrich_UnknownEmployee(t *testing.T) {
	dir := timeoff.NewDirectory(memory.New())
	_, err := report.Enrich(context.Background(), dir, []timeoff.LeaveRequest{{ID: "r1", EmployeeID: "ghost"}})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestWriteLeaveRequests_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteLeaveRequests(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
