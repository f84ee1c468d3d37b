package main

import (
	"errors"
	"fmt"

	"github.com/jgoulah/submeter/internal/database"
	"github.com/jgoulah/submeter/internal/report"
	"github.com/jgoulah/submeter/internal/thingspeak"
	"github.com/jgoulah/submeter/internal/usage"
)

// errMissingDate is returned when a range is given only one of its dates
var errMissingDate = errors.New("please select both dates")

// statusMessage converts a command failure to the one-line message shown to the user
func statusMessage(err error) string {
	switch {
	case errors.Is(err, errMissingDate):
		return "Please select both dates"
	case errors.Is(err, usage.ErrNoDataInRange):
		return "Not enough data for the selected range"
	case errors.Is(err, report.ErrNoResultAvailable), errors.Is(err, database.ErrReportNotFound):
		return "Please calculate usage first"
	case errors.Is(err, thingspeak.ErrFetch):
		return fmt.Sprintf("Error fetching data: %v", err)
	case usage.IsUserError(err):
		return fmt.Sprintf("Cannot compute usage: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
