package usage

import (
	"fmt"
	"regexp"
	"time"

	"github.com/jgoulah/submeter/pkg/models"
)

// DateLayout is the civil date format accepted for ranges
const DateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate validates a civil date and returns midnight of that date in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return t, nil
}

// ParseRange validates both dates of an explicit range. start <= end is not enforced;
// an inverted range surfaces later as negative usage.
func ParseRange(start, end string) (models.DateRange, error) {
	for _, s := range []string{start, end} {
		if _, err := ParseDate(s, time.UTC); err != nil {
			return models.DateRange{}, err
		}
	}
	return models.DateRange{Start: start, End: end}, nil
}

// ThisMonth is the range from the first of now's month to today, ending at now
func ThisMonth(now time.Time, loc *time.Location) models.DateRange {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return models.DateRange{
		Start:  first.Format(DateLayout),
		End:    local.Format(DateLayout),
		ToDate: true,
	}
}

// LastMonth is the whole calendar month before now's month
func LastMonth(now time.Time, loc *time.Location) models.DateRange {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	prevFirst := first.AddDate(0, -1, 0)
	prevLast := first.AddDate(0, 0, -1)
	return models.DateRange{
		Start: prevFirst.Format(DateLayout),
		End:   prevLast.Format(DateLayout),
	}
}

// Preset resolves a named range ("this" or "last")
func Preset(name string, now time.Time, loc *time.Location) (models.DateRange, bool) {
	switch name {
	case "this", "this-month":
		return ThisMonth(now, loc), true
	case "last", "last-month":
		return LastMonth(now, loc), true
	default:
		return models.DateRange{}, false
	}
}

// Targets resolves a range to the instants whose readings bound it: midnight of
// Start, and 23:59:59 of End (or now for a month-to-date range).
func Targets(r models.DateRange, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	start, err := ParseDate(r.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endDay, err := ParseDate(r.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if r.ToDate {
		return start, now, nil
	}
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 23, 59, 59, 0, loc)
	return start, end, nil
}
