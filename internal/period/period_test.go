package period

import (
	"testing"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBucketBoundsWeeklyStartsMonday(t *testing.T) {
	// 2025-06-18 is a Wednesday.
	start, end := BucketBounds(date(2025, time.June, 18), domain.PeriodWeekly)
	assert.Equal(t, date(2025, time.June, 16), start)
	assert.Equal(t, date(2025, time.June, 22), end)

	// A Monday is its own bucket start.
	start, _ = BucketBounds(date(2025, time.June, 16), domain.PeriodWeekly)
	assert.Equal(t, date(2025, time.June, 16), start)
}

func TestBucketBoundsDaily(t *testing.T) {
	start, end := BucketBounds(date(2025, time.March, 3), domain.PeriodDaily)
	assert.Equal(t, date(2025, time.March, 3), start)
	assert.Equal(t, date(2025, time.March, 3), end)
}

func TestBucketBoundsBiweekly(t *testing.T) {
	start, end := BucketBounds(date(2025, time.June, 18), domain.PeriodBiweekly)
	assert.Equal(t, date(2025, time.June, 16), start)
	assert.Equal(t, date(2025, time.June, 29), end)
}

func TestBucketBoundsBiweeklyTilesAcross53WeekYear(t *testing.T) {
	// 2020 has 53 ISO weeks, so week 53 and week 1 of 2021 are both odd;
	// parity-based anchoring would give them overlapping fortnights.
	start, end := BucketBounds(date(2020, time.December, 28), domain.PeriodBiweekly)
	assert.Equal(t, date(2020, time.December, 21), start)
	assert.Equal(t, date(2021, time.January, 3), end)

	next, nextEnd := BucketBounds(date(2021, time.January, 4), domain.PeriodBiweekly)
	assert.Equal(t, end.AddDate(0, 0, 1), next, "fortnights tile without gap or overlap")
	assert.Equal(t, date(2021, time.January, 17), nextEnd)
}

func TestBucketBoundsMonthly(t *testing.T) {
	start, end := BucketBounds(date(2025, time.February, 14), domain.PeriodMonthly)
	assert.Equal(t, date(2025, time.February, 1), start)
	assert.Equal(t, date(2025, time.February, 28), end)
}

func TestBucketBoundsQuarterly(t *testing.T) {
	start, end := BucketBounds(date(2025, time.August, 31), domain.PeriodQuarterly)
	assert.Equal(t, date(2025, time.July, 1), start)
	assert.Equal(t, date(2025, time.September, 30), end)
}

func TestBucketBoundsYearly(t *testing.T) {
	start, end := BucketBounds(date(2025, time.August, 31), domain.PeriodYearly)
	assert.Equal(t, date(2025, time.January, 1), start)
	assert.Equal(t, date(2025, time.December, 31), end)
}

func TestShift(t *testing.T) {
	monday := date(2025, time.June, 16)

	assert.Equal(t, date(2025, time.June, 23), Shift(monday, domain.PeriodWeekly, 1))
	assert.Equal(t, date(2025, time.June, 2), Shift(monday, domain.PeriodWeekly, -2))
	assert.Equal(t, date(2025, time.August, 16), Shift(date(2025, time.June, 16), domain.PeriodMonthly, 2))
	assert.Equal(t, date(2026, time.June, 16), Shift(monday, domain.PeriodYearly, 1))

	// Unknown period type shifts by nothing.
	assert.Equal(t, monday, Shift(monday, domain.PeriodType("hourly"), 3))
}

func TestSequenceWeekly(t *testing.T) {
	from := date(2025, time.June, 2)
	to := date(2025, time.June, 23)

	buckets := Sequence(from, to, domain.PeriodWeekly)
	require.Len(t, buckets, 4)
	assert.Equal(t, date(2025, time.June, 2), buckets[0].Start)
	assert.Equal(t, date(2025, time.June, 23), buckets[3].Start)
}

func TestSequenceEmptyWhenReversed(t *testing.T) {
	buckets := Sequence(date(2025, time.June, 23), date(2025, time.June, 2), domain.PeriodWeekly)
	assert.Empty(t, buckets)
}

func TestDayCount(t *testing.T) {
	cases := map[domain.PeriodType]int{
		domain.PeriodDaily:     1,
		domain.PeriodWeekly:    7,
		domain.PeriodBiweekly:  14,
		domain.PeriodMonthly:   30,
		domain.PeriodQuarterly: 90,
		domain.PeriodYearly:    365,
	}
	for pt, want := range cases {
		got, ok := DayCount(pt)
		require.True(t, ok, "period %s", pt)
		assert.Equal(t, want, got, "period %s", pt)
	}

	_, ok := DayCount(domain.PeriodType("hourly"))
	assert.False(t, ok)
}

func TestBucketKeyFormats(t *testing.T) {
	d := date(2025, time.June, 18)

	assert.Equal(t, "2025-06-18", BucketKey(d, domain.PeriodDaily))
	assert.Equal(t, "2025-06", BucketKey(d, domain.PeriodMonthly))
	assert.Equal(t, "2025-Q2", BucketKey(d, domain.PeriodQuarterly))
	assert.Equal(t, "2025", BucketKey(d, domain.PeriodYearly))
}
