/*
Package generic provides the value types shared by the leave engine.

PURPOSE:
  This package contains domain-agnostic building blocks: quantities of leave,
  calendar dates, date ranges, the clock, and the error taxonomy. The timeoff
  package builds the request lifecycle on top of these; storage and API
  packages use them to stay consistent about precision and date handling.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 3 days, 20 days)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so balances never drift (20 - 0.1*10 == 19)
  2. Type Safety: Amounts carry their unit so days and hours are never mixed

USAGE:
  requested := generic.NewAmountFromInt(3, generic.UnitDays)
  if requested.GreaterThan(emp.Balance()) { ... }

SEE ALSO:
  - time.go: Calendar dates and inclusive ranges
  - errors.go: Error kinds returned by every engine operation
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const UnitDays Unit = "days"

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days wraps a decimal quantity of days.
func Days(value decimal.Decimal) Amount {
	return Amount{Value: value, Unit: UnitDays}
}

func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) String() string            { return a.Value.String() + " " + string(a.Unit) }
func (a Amount) Float64() float64          { f, _ := a.Value.Float64(); return f }
