package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (no time-of-day)
// =============================================================================

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day of t, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrInvalidInput, s)
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) IsZero() bool   { return tp.Time.IsZero() }
func (tp TimePoint) String() string { return tp.Time.Format(DateLayout) }

const secondsPerDay = 24 * 60 * 60

// DaysBetween counts whole calendar days from from to to. It works on Unix
// seconds so spans beyond time.Duration's range stay exact.
func DaysBetween(from, to TimePoint) int {
	return int((to.normalize().Unix() - from.normalize().Unix()) / secondsPerDay)
}

// =============================================================================
// DATE RANGE - Inclusive [Start, End]
// =============================================================================

type DateRange struct {
	Start TimePoint
	End   TimePoint
}

func NewDateRange(start, end TimePoint) DateRange {
	return DateRange{Start: start, End: end}
}

// Valid reports whether End does not precede Start.
func (r DateRange) Valid() bool { return !r.End.Before(r.Start) }

// Days is the inclusive day count: a single-day range is 1.
func (r DateRange) Days() int { return DaysBetween(r.Start, r.End) + 1 }

// Contains reports whether d falls within the range, bounds included.
func (r DateRange) Contains(d TimePoint) bool {
	return r.Start.BeforeOrEqual(d) && d.BeforeOrEqual(r.End)
}

// Overlaps reports whether existing intersects r. existing overlaps when its
// start or its end lies inside r, or when it fully contains r.
func (r DateRange) Overlaps(existing DateRange) bool {
	return r.Contains(existing.Start) ||
		r.Contains(existing.End) ||
		(existing.Start.BeforeOrEqual(r.Start) && existing.End.AfterOrEqual(r.End))
}

func (r DateRange) String() string { return fmt.Sprintf("[%s, %s]", r.Start, r.End) }

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current instant. Engines take one so tests can pin "today".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Today returns the calendar date of c.
func (c Clock) Today() TimePoint {
	if c == nil {
		return DateOf(SystemClock())
	}
	return DateOf(c())
}

// Now returns c's instant, falling back to the system clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
