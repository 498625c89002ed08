package recommend

import (
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// PickExpiration chooses the future expiration whose DTE is nearest the
// middle of [minDTE, maxDTE], so one inside the window always wins when it
// exists. Ties go to the earlier date.
func PickExpiration(exps []time.Time, now time.Time, minDTE, maxDTE int) (time.Time, bool) {
	target := float64(minDTE+maxDTE) / 2

	var (
		best     time.Time
		bestDist float64
		found    bool
	)
	for _, exp := range dedupe(exps) {
		dte := models.DaysToExpiration(now, exp)
		if dte <= 0 {
			continue
		}
		if dist := math.Abs(float64(dte) - target); !found || dist < bestDist {
			best, bestDist, found = exp, dist, true
		}
	}
	return best, found
}

// InWindow returns the expirations with DTE in [minDTE, maxDTE], earliest first.
func InWindow(exps []time.Time, now time.Time, minDTE, maxDTE int) []time.Time {
	out := []time.Time{}
	for _, exp := range dedupe(exps) {
		if dte := models.DaysToExpiration(now, exp); dte >= minDTE && dte <= maxDTE {
			out = append(out, exp)
		}
	}
	return out
}

// dedupe sorts expirations and drops repeated calendar dates.
func dedupe(exps []time.Time) []time.Time {
	sorted := make([]time.Time, len(exps))
	copy(sorted, exps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	out := make([]time.Time, 0, len(sorted))
	var last string
	for _, exp := range sorted {
		if exp.IsZero() {
			continue
		}
		day := exp.Format("2006-01-02")
		if day == last {
			continue
		}
		last = day
		out = append(out, exp)
	}
	return out
}
