package main

import (
	"errors"
	"testing"
	"time"

	"github.com/jgoulah/submeter/internal/usage"
)

func TestRangeFromArgs(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	r, err := rangeFromArgs([]string{"this"}, now, time.UTC)
	if err != nil || !r.ToDate || r.Start != "2024-06-01" || r.End != "2024-06-15" {
		t.Errorf("unexpected this-month range %+v (%v)", r, err)
	}

	r, err = rangeFromArgs([]string{"last"}, now, time.UTC)
	if err != nil || r.Start != "2024-05-01" || r.End != "2024-05-31" {
		t.Errorf("unexpected last-month range %+v (%v)", r, err)
	}

	r, err = rangeFromArgs([]string{"2024-06-01", "2024-06-10"}, now, time.UTC)
	if err != nil || r.Start != "2024-06-01" || r.End != "2024-06-10" || r.ToDate {
		t.Errorf("unexpected explicit range %+v (%v)", r, err)
	}

	if _, err := rangeFromArgs([]string{"2024-06-01"}, now, time.UTC); !errors.Is(err, errMissingDate) {
		t.Errorf("expected errMissingDate, got %v", err)
	}

	for _, arg := range []string{"2024/01/01", "13-40-2024"} {
		if _, err := rangeFromArgs([]string{arg}, now, time.UTC); !errors.Is(err, usage.ErrInvalidDateFormat) {
			t.Errorf("expected ErrInvalidDateFormat for lone %q, got %v", arg, err)
		}
	}

	if _, err := rangeFromArgs([]string{"2024/06/01", "2024-06-10"}, now, time.UTC); !errors.Is(err, usage.ErrInvalidDateFormat) {
		t.Errorf("expected ErrInvalidDateFormat, got %v", err)
	}
}
