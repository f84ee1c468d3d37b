package usage

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/jgoulah/submeter/pkg/models"
)

// Seed picks the sample a nearest-sample scan starts from
type Seed int

const (
	// SeedFirst starts from the earliest sample (start side of a range)
	SeedFirst Seed = iota
	// SeedLast starts from the latest sample (end side of a range)
	SeedLast
)

// Nearest returns the sample closest in time to target. Samples are scanned in
// ascending timestamp order and only a strictly closer sample replaces the
// current pick. With SeedFirst a tie goes to the earlier sample. With SeedLast
// the latest sample is the initial pick, so any exact tie involving it keeps
// the latest sample, whatever the window size.
func Nearest(samples []models.Sample, target time.Time, seed Seed) (models.Sample, bool) {
	if len(samples) == 0 {
		return models.Sample{}, false
	}

	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b models.Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	initial := sorted[0]
	if seed == SeedLast {
		initial = sorted[len(sorted)-1]
	}

	best := lo.Reduce(sorted, func(best models.Sample, s models.Sample, _ int) models.Sample {
		if distance(s, target) < distance(best, target) {
			return s
		}
		return best
	}, initial)
	return best, true
}

func distance(s models.Sample, target time.Time) time.Duration {
	return s.Timestamp.Sub(target).Abs()
}
