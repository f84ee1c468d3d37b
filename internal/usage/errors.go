package usage

import "errors"

var (
	// ErrInvalidDateFormat indicates a civil date was not YYYY-MM-DD
	ErrInvalidDateFormat = errors.New("invalid date format (use YYYY-MM-DD)")

	// ErrNoDataInRange indicates a window around a target had no samples
	ErrNoDataInRange = errors.New("not enough data for the selected range")

	// ErrInvalidReading indicates a selected sample's value is not a finite number
	ErrInvalidReading = errors.New("invalid meter reading")

	// ErrNegativeUsage indicates the end reading is lower than the start reading
	ErrNegativeUsage = errors.New("negative usage")

	// ErrSuperseded indicates a newer computation replaced this one before it finished
	ErrSuperseded = errors.New("computation superseded by a newer request")
)
