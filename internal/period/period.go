// internal/period/period.go
package period

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/domain"
)

// Bucket is one calendar bucket of a period type. Start and End are
// inclusive date bounds at midnight UTC.
type Bucket struct {
	Key   string
	Start time.Time
	End   time.Time
}

// DaysPerPeriod is the fixed divisor table used for daily decomposition.
// These are deliberate approximations (30-day months, 90-day quarters), not
// calendar-exact day counts; swapping in exact decomposition only requires
// changing this table.
var DaysPerPeriod = map[domain.PeriodType]int{
	domain.PeriodDaily:     1,
	domain.PeriodWeekly:    7,
	domain.PeriodBiweekly:  14,
	domain.PeriodMonthly:   30,
	domain.PeriodQuarterly: 90,
	domain.PeriodYearly:    365,
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// biweeklyEpoch anchors biweekly buckets: a fixed Monday, so fortnights
// tile the calendar without gaps or overlaps. ISO-week parity cannot be
// used here because 53-week years put two odd weeks back to back.
var biweeklyEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// mondayOf returns the Monday of the ISO week containing t.
func mondayOf(t time.Time) time.Time {
	d := dateOf(t)
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, 1-wd)
}

// BucketBounds returns the inclusive calendar bounds of the bucket
// containing t. Weekly buckets start Monday, quarterly buckets on
// Jan/Apr/Jul/Oct, biweekly buckets on epoch-aligned Mondays.
func BucketBounds(t time.Time, pt domain.PeriodType) (time.Time, time.Time) {
	d := dateOf(t)
	switch pt {
	case domain.PeriodDaily:
		return d, d
	case domain.PeriodWeekly:
		start := mondayOf(d)
		return start, start.AddDate(0, 0, 6)
	case domain.PeriodBiweekly:
		start := mondayOf(d)
		offset := int(start.Sub(biweeklyEpoch).Hours()/24) % 14
		if offset < 0 {
			offset += 14
		}
		if offset != 0 {
			start = start.AddDate(0, 0, -7)
		}
		return start, start.AddDate(0, 0, 13)
	case domain.PeriodMonthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	case domain.PeriodQuarterly:
		qMonth := time.Month((int(d.Month())-1)/3*3 + 1)
		start := time.Date(d.Year(), qMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1)
	case domain.PeriodYearly:
		start := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, -1)
	}
	log.Warn().Str("period_type", string(pt)).Msg("bucket bounds for unknown period type")
	return d, d
}

// Shift moves t by n buckets of the given period type. An unknown period
// type yields a zero shift; this mirrors the historical behavior and is
// logged rather than silently corrected.
func Shift(t time.Time, pt domain.PeriodType, n int) time.Time {
	switch pt {
	case domain.PeriodDaily:
		return t.AddDate(0, 0, n)
	case domain.PeriodWeekly:
		return t.AddDate(0, 0, 7*n)
	case domain.PeriodBiweekly:
		return t.AddDate(0, 0, 14*n)
	case domain.PeriodMonthly:
		return t.AddDate(0, n, 0)
	case domain.PeriodQuarterly:
		return t.AddDate(0, 3*n, 0)
	case domain.PeriodYearly:
		return t.AddDate(n, 0, 0)
	}
	log.Warn().Str("period_type", string(pt)).Msg("shift for unknown period type, returning zero delta")
	return t
}

// BucketKey returns a stable grouping key for the bucket containing t:
// instants in the same bucket share the key regardless of time of day.
func BucketKey(t time.Time, pt domain.PeriodType) string {
	d := dateOf(t)
	switch pt {
	case domain.PeriodDaily:
		return d.Format("2006-01-02")
	case domain.PeriodWeekly:
		year, week := d.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case domain.PeriodBiweekly:
		start, _ := BucketBounds(d, domain.PeriodBiweekly)
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-BW%02d", year, week)
	case domain.PeriodMonthly:
		return d.Format("2006-01")
	case domain.PeriodQuarterly:
		return fmt.Sprintf("%d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
	case domain.PeriodYearly:
		return d.Format("2006")
	}
	return d.Format("2006-01-02")
}

// Sequence returns every bucket from the one containing from through the
// one containing to, in order. Accumulators built over the result always
// have every bucket present even when zero-valued.
func Sequence(from, to time.Time, pt domain.PeriodType) []Bucket {
	if _, ok := DaysPerPeriod[pt]; !ok {
		log.Warn().Str("period_type", string(pt)).Msg("sequence for unknown period type")
		return nil
	}
	var out []Bucket
	start, end := BucketBounds(from, pt)
	stop := dateOf(to)
	for !start.After(stop) {
		out = append(out, Bucket{Key: BucketKey(start, pt), Start: start, End: end})
		start = Shift(start, pt, 1)
		_, end = BucketBounds(start, pt)
	}
	return out
}

// DayCount returns the fixed divisor for decomposing one bucket of pt into
// daily values.
func DayCount(pt domain.PeriodType) (int, bool) {
	n, ok := DaysPerPeriod[pt]
	return n, ok
}
