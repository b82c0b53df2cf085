package schedule

import (
	"testing"
	"time"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{"plain month", date(2024, time.January, 15), 1, date(2024, time.February, 15)},
		{"clamp to leap february", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"clamp to short february", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"clamp to 30-day month", date(2024, time.March, 31), 1, date(2024, time.April, 30)},
		{"quarter", date(2024, time.January, 15), 3, date(2024, time.April, 15)},
		{"year rollover", date(2024, time.November, 15), 3, date(2025, time.February, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.start, tt.months))
		})
	}
}

func TestPeriodDays(t *testing.T) {
	tests := []struct {
		name   string
		freq   models.PaymentFrequency
		anchor time.Time
		want   int
	}{
		{"daily is flat 30", models.FrequencyDaily, date(2024, time.January, 15), 30},
		{"weekly is flat 30", models.FrequencyWeekly, date(2024, time.January, 15), 30},
		{"biweekly is flat 30", models.FrequencyBiweekly, date(2024, time.January, 15), 30},
		{"monthly 31-day span capped at 30", models.FrequencyMonthly, date(2024, time.January, 15), 30},
		{"monthly short february", models.FrequencyMonthly, date(2024, time.February, 15), 29},
		{"quarterly real span", models.FrequencyQuarterly, date(2024, time.January, 15), 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodDays(tt.freq, tt.anchor))
		})
	}
}

func TestElapsedDays(t *testing.T) {
	tests := []struct {
		name string
		freq models.PaymentFrequency
		from time.Time
		to   time.Time
		want int
	}{
		{"weekly always 30", models.FrequencyWeekly, date(2024, time.January, 15), date(2024, time.January, 22), 30},
		{"monthly on schedule capped", models.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.February, 15), 30},
		{"monthly early", models.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.February, 5), 21},
		{"monthly late capped at period", models.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.March, 20), 30},
		{"monthly same day floors at 1", models.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.January, 15), 1},
		{"monthly backwards floors at 1", models.FrequencyMonthly, date(2024, time.January, 15), date(2024, time.January, 10), 1},
		{"quarterly real span", models.FrequencyQuarterly, date(2024, time.January, 15), date(2024, time.April, 15), 90},
		{"quarterly capped at 90", models.FrequencyQuarterly, date(2024, time.January, 15), date(2024, time.June, 15), 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedDays(tt.freq, tt.from, tt.to))
		})
	}
}

func TestPeriodInterest(t *testing.T) {
	base := decimal.NewFromInt(1_000_000)
	rate := decimal.NewFromInt(2)

	full := PeriodInterest(base, rate, 30).Round(0)
	assert.True(t, full.Equal(decimal.NewFromInt(20_000)), "got %s", full)

	partial := PeriodInterest(base, rate, 21).Round(0)
	assert.True(t, partial.Equal(decimal.NewFromInt(14_000)), "got %s", partial)

	declining := PeriodInterest(decimal.NewFromInt(900_000), rate, 30).Round(0)
	assert.True(t, declining.Equal(decimal.NewFromInt(18_000)), "got %s", declining)
}

func TestAdvanceDate(t *testing.T) {
	start := date(2024, time.January, 15)
	tests := []struct {
		name string
		freq models.PaymentFrequency
		n    int
		want time.Time
	}{
		{"daily", models.FrequencyDaily, 10, date(2024, time.January, 25)},
		{"weekly", models.FrequencyWeekly, 4, date(2024, time.February, 12)},
		{"biweekly", models.FrequencyBiweekly, 2, date(2024, time.February, 12)},
		{"monthly", models.FrequencyMonthly, 10, date(2024, time.November, 15)},
		{"quarterly", models.FrequencyQuarterly, 2, date(2024, time.July, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdvanceDate(start, tt.freq, tt.n))
		})
	}
}

func TestDueDate(t *testing.T) {
	start := date(2024, time.January, 31)
	// Third monthly installment lands at the end of April, clamped through
	// the intermediate short months independently of payment history.
	assert.Equal(t, date(2024, time.April, 30), DueDate(start, models.FrequencyMonthly, 3))
	assert.Equal(t, date(2024, time.February, 14), DueDate(date(2024, time.January, 31), models.FrequencyBiweekly, 1))
}
