// Package calendar defines what "today" means for day-keyed data and expands
// month filters into calendar-correct date ranges.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lifedesk/internal/core"
)

// DefaultOffsetHours is the fixed offset of the app's reference day (UTC+9).
const DefaultOffsetHours = 9

// Policy maps an instant to the calendar day it belongs to.
type Policy interface {
	Today(now time.Time) core.Date
}

// FixedOffset is a calendar whose day starts at midnight of UTC plus a
// constant offset. The viewer's own timezone is never consulted.
type FixedOffset struct {
	Offset time.Duration
}

// BusinessDay returns the fixed-offset policy for offsetHours.
func BusinessDay(offsetHours int) FixedOffset {
	return FixedOffset{Offset: time.Duration(offsetHours) * time.Hour}
}

func (p FixedOffset) Today(now time.Time) core.Date {
	t := now.UTC().Add(p.Offset)
	return core.NewDate(t.Year(), int(t.Month()), t.Day())
}

// Clock is the source of the current instant.
type Clock func() time.Time

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (int, time.Month, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: year-month %q", core.ErrInvalidDate, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: year-month %q", core.ErrInvalidDate, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: year-month %q", core.ErrInvalidDate, s)
	}
	return year, time.Month(month), nil
}

// MonthRange expands "YYYY-MM" into its inclusive first and last day.
func MonthRange(yearMonth string) (core.Date, core.Date, error) {
	year, month, err := ParseYearMonth(yearMonth)
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	// Day 0 of the next month is the last day of this one.
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return core.NewDate(year, int(month), 1), core.NewDate(year, int(month), lastDay), nil
}

// YearMonth formats the month a date belongs to as "YYYY-MM".
func YearMonth(d core.Date) string {
	return d.Format("2006-01")
}
