package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jgoulah/submeter/pkg/models"
)

// ErrNoResultAvailable indicates an export was requested before any usage was computed
var ErrNoResultAvailable = errors.New("please calculate usage first")

// FormatDate converts a YYYY-MM-DD civil date to MM-DD-YYYY
func FormatDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return fmt.Sprintf("%s-%s-%s", parts[1], parts[2], parts[0])
}

// Format renders the plain-text usage report
func Format(result *models.UsageResult, siteLabel string) (string, error) {
	if result == nil {
		return "", ErrNoResultAvailable
	}
	return fmt.Sprintf("%s Power Usage Report\n\nUsage: %.2f kWh\nFrom: %s\nTo: %s",
		siteLabel,
		result.UsageKWh,
		FormatDate(result.Range.Start),
		FormatDate(result.Range.End),
	), nil
}

// Filename returns the export file name for a range
func Filename(r models.DateRange) string {
	return fmt.Sprintf("usage-report-%s-to-%s.txt", r.Start, r.End)
}

// Write saves the report for result into dir and returns the file path
func Write(dir string, result *models.UsageResult, siteLabel string) (string, error) {
	content, err := Format(result, siteLabel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, Filename(result.Range))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Summary is the one-line result shown after a computation
func Summary(result models.UsageResult) string {
	return fmt.Sprintf("%.2f kWh used from %s to %s",
		result.UsageKWh, FormatDate(result.Range.Start), FormatDate(result.Range.End))
}

// Latest is the one-line display of the latest reading
func Latest(s models.Sample, loc *time.Location, now time.Time) string {
	return fmt.Sprintf("%.2f kWh at %s (%s)",
		s.Value,
		s.Timestamp.In(loc).Format("01/02/2006, 3:04:05 PM"),
		humanize.RelTime(s.Timestamp, now, "ago", "from now"),
	)
}
