package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidWindow is returned when a reporting window does not satisfy end > start.
var ErrInvalidWindow = errors.New("reporting window end must be after start")

// ReportingWindow is the half-open interval [Start, End) a report covers.
// Both bounds are stored as UTC instants.
type ReportingWindow struct {
	Start time.Time
	End   time.Time
}

// NewReportingWindow normalises both bounds to UTC and validates ordering.
func NewReportingWindow(start, end time.Time) (ReportingWindow, error) {
	w := ReportingWindow{Start: start.UTC(), End: end.UTC()}
	if !w.End.After(w.Start) {
		return ReportingWindow{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}

// WindowEndingAt builds the window [end - days, end).
func WindowEndingAt(end time.Time, days int) (ReportingWindow, error) {
	return NewReportingWindow(end.AddDate(0, 0, -days), end)
}

// Duration is the length of the window.
func (w ReportingWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Days is the window length in whole days, rounded up, never below 1.
func (w ReportingWindow) Days() int {
	days := int(math.Ceil(w.Duration().Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// Contains reports whether t falls inside [Start, End).
func (w ReportingWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// OverlapsDay reports whether the calendar day (midnight-to-midnight in loc) overlaps the window.
func (w ReportingWindow) OverlapsDay(day time.Time, loc *time.Location) bool {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	return dayStart.Before(w.End) && dayEnd.After(w.Start)
}

// DateRange returns the first and last calendar dates (in loc) touched by the window.
func (w ReportingWindow) DateRange(loc *time.Location) (time.Time, time.Time) {
	first := DateOf(w.Start, loc)
	// End is exclusive; step back one nanosecond to find the last touched day.
	last := DateOf(w.End.Add(-time.Nanosecond), loc)
	return first, last
}

func (w ReportingWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// DateOf returns the calendar date of t in loc as midnight UTC, the representation used for DATE columns.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseWindowBound parses a textual window bound. RFC 3339 values keep their offset;
// values without an offset are promoted into loc.
func ParseWindowBound(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty window bound")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised window bound %q", value)
}
