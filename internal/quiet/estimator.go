// internal/quiet/estimator.go
package quiet

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/repository"
)

// quietTolerance: hours whose averaged profile sits within 5% of the
// minimum count as quiet.
const quietTolerance = 0.05

// EstimateQuietHour finds the least-busy hour of day from order
// timestamps. Each day's 24-hour profile is normalized to its own max so
// low-volume days weigh the same as busy ones, the normalized profiles are
// averaged, and the midpoint of the longest contiguous quiet run (wrapping
// midnight) wins. Empty history falls back to hour 0.
func EstimateQuietHour(timestamps []time.Time, lookbackDays int) int {
	if len(timestamps) == 0 {
		return 0
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	profiles := make(map[string]*[24]float64)
	for _, ts := range timestamps {
		if lookbackDays > 0 && ts.Before(cutoff) {
			continue
		}
		day := ts.UTC().Format("2006-01-02")
		p, ok := profiles[day]
		if !ok {
			p = &[24]float64{}
			profiles[day] = p
		}
		p[ts.UTC().Hour()]++
	}
	if len(profiles) == 0 {
		return 0
	}

	var avg [24]float64
	for _, p := range profiles {
		max := 0.0
		for _, v := range p {
			if v > max {
				max = v
			}
		}
		if max == 0 {
			continue
		}
		for h, v := range p {
			avg[h] += v / max
		}
	}
	for h := range avg {
		avg[h] /= float64(len(profiles))
	}

	min, max := avg[0], avg[0]
	for _, v := range avg[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	threshold := min + quietTolerance*max

	// Longest contiguous quiet run, scanning the doubled circle so a run
	// across midnight is seen whole.
	bestStart, bestLen := 0, 0
	runStart, runLen := -1, 0
	for i := 0; i < 48; i++ {
		h := i % 24
		if avg[h] <= threshold {
			if runStart < 0 {
				runStart = i
			}
			runLen++
			if runLen > bestLen && runLen <= 24 {
				bestStart, bestLen = runStart, runLen
			}
		} else {
			runStart, runLen = -1, 0
		}
	}
	if bestLen == 0 {
		return 0
	}
	if bestLen > 24 {
		bestLen = 24
	}
	return (bestStart + bestLen/2) % 24
}

// Estimator wires the heuristic to stored order history.
type Estimator struct {
	orders repository.OrderRepository
}

func NewEstimator(orders repository.OrderRepository) *Estimator {
	return &Estimator{orders: orders}
}

// QuietHour estimates the off-peak hour for scheduling the nightly sync.
func (e *Estimator) QuietHour(ctx context.Context, lookbackDays int) (int, error) {
	if lookbackDays < 1 {
		lookbackDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)
	times, err := e.orders.OrderTimesSince(ctx, since)
	if err != nil {
		return 0, err
	}
	hour := EstimateQuietHour(times, lookbackDays)
	log.Info().Int("hour", hour).Int("orders", len(times)).Int("lookback_days", lookbackDays).
		Msg("quiet hour estimated")
	return hour, nil
}
