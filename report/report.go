/*
report.go - Excel export of leave requests

PURPOSE:
  Produces the administrators' workbook: one row per leave request with the
  owner's and reviewer's names resolved from the directory.

LAYOUT:
  Sheet "Leave Requests", bold header row, one request per row in the order
  given (the ledger lists most recent first).

SEE ALSO:
  - api/handlers.go: GET /api/admin/leaves/export
*/
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/warp/leave-engine/timeoff"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Leave Requests"

var header = []interface{}{
	"Request ID", "Employee", "Email", "Department", "Leave Type",
	"Start Date", "End Date", "Days", "Status", "Reason",
	"Reviewer", "Reviewer Comments", "Decided At", "Submitted At",
}

// =============================================================================
// ROWS
// =============================================================================

// Row is a request with its owner and, once decided, its reviewer.
type Row struct {
	Request  timeoff.LeaveRequest
	Owner    *timeoff.Employee
	Reviewer *timeoff.Employee
}

// EmployeeLookup resolves employee ids. *timeoff.Directory satisfies it.
type EmployeeLookup interface {
	Get(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error)
}

// Enrich resolves the owner and reviewer of every request, looking each
// employee up once.
func Enrich(ctx context.Context, lookup EmployeeLookup, reqs []timeoff.LeaveRequest) ([]Row, error) {
	seen := make(map[timeoff.EmployeeID]*timeoff.Employee)
	resolve := func(id timeoff.EmployeeID) (*timeoff.Employee, error) {
		if e, ok := seen[id]; ok {
			return e, nil
		}
		e, err := lookup.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve employee %s: %w", id, err)
		}
		seen[id] = e
		return e, nil
	}

	rows := make([]Row, 0, len(reqs))
	for _, req := range reqs {
		owner, err := resolve(req.EmployeeID)
		if err != nil {
			return nil, err
		}
		row := Row{Request: req, Owner: owner}
		if req.HasReviewer() {
			if row.Reviewer, err = resolve(req.ReviewerID); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// =============================================================================
// WORKBOOK
// =============================================================================

// WriteLeaveRequests writes rows as an xlsx workbook to w.
func WriteLeaveRequests(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "N", 18)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := rowValues(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func rowValues(row Row) []interface{} {
	req := row.Request
	var reviewer, decidedAt string
	if row.Reviewer != nil {
		reviewer = row.Reviewer.FullName
	}
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.UTC().Format(time.RFC3339)
	}
	var owner, email, department string
	if row.Owner != nil {
		owner, email, department = row.Owner.FullName, row.Owner.Email, row.Owner.Department
	}
	return []interface{}{
		string(req.ID), owner, email, department, string(req.LeaveType),
		req.StartDate.String(), req.EndDate.String(), req.DayCount, string(req.Status), req.Reason,
		reviewer, req.ReviewerComments, decidedAt, req.CreatedAt.UTC().Format(time.RFC3339),
	}
}
