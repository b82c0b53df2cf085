// Package schedule holds the pure day-count and period-interest math shared by
// the ledger and the risk profiler. All period interest is normalized to a
// 30-day month: sub-monthly frequencies always count a flat 30 days, while
// monthly and quarterly periods use the real calendar span between the anchor
// date and the same day-of-month one (or three) months later.
package schedule

import (
	"time"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	flatPeriodDays   = 30
	maxMonthlyDays   = 30
	maxQuarterlyDays = 90
)

var (
	hundred = decimal.NewFromInt(100)
	thirty  = decimal.NewFromInt(30)
)

// AddMonths advances t by the given number of calendar months, preserving the
// day-of-month and clamping to the last day of shorter months (Jan 31 + 1
// month = Feb 28/29, never Mar 2/3).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(firstOfTarget); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func clampDays(days, max int) int {
	if days < 1 {
		return 1
	}
	if days > max {
		return max
	}
	return days
}

// PeriodDays returns the interest-bearing length of one period starting at
// anchor. Daily, weekly and biweekly loans bill a full 30-day month per
// period regardless of true calendar length.
func PeriodDays(freq models.PaymentFrequency, anchor time.Time) int {
	switch freq {
	case models.FrequencyMonthly:
		return clampDays(calendarDays(anchor, AddMonths(anchor, 1)), maxMonthlyDays)
	case models.FrequencyQuarterly:
		return clampDays(calendarDays(anchor, AddMonths(anchor, 3)), maxQuarterlyDays)
	default:
		return flatPeriodDays
	}
}

// ElapsedDays returns the billable days between a reference date and an
// actual payment date. Sub-monthly frequencies always bill 30 days; monthly
// and quarterly bill the real span, clamped to at least 1 day and at most one
// full period, so an early or same-day payment never yields zero interest and
// a late one never bills beyond the period.
func ElapsedDays(freq models.PaymentFrequency, from, to time.Time) int {
	switch freq {
	case models.FrequencyMonthly:
		return clampDays(calendarDays(from, to), maxMonthlyDays)
	case models.FrequencyQuarterly:
		return clampDays(calendarDays(from, to), maxQuarterlyDays)
	default:
		return flatPeriodDays
	}
}

// PeriodInterest prorates a 30-day period rate over the given day count:
// monthly = base * rate/100, daily = monthly/30, interest = daily * days.
// The base is the original total for FIXED loans and the outstanding balance
// for DECREASING loans; the caller rounds the result.
func PeriodInterest(base, ratePercent decimal.Decimal, days int) decimal.Decimal {
	monthly := base.Mul(ratePercent).Div(hundred)
	daily := monthly.Div(thirty)
	return daily.Mul(decimal.NewFromInt(int64(days)))
}

// AdvanceDate moves a date forward by n periods of the given frequency.
func AdvanceDate(t time.Time, freq models.PaymentFrequency, n int) time.Time {
	switch freq {
	case models.FrequencyDaily:
		return t.AddDate(0, 0, n)
	case models.FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case models.FrequencyBiweekly:
		return t.AddDate(0, 0, 14*n)
	case models.FrequencyMonthly:
		return AddMonths(t, n)
	case models.FrequencyQuarterly:
		return AddMonths(t, 3*n)
	}
	return t
}

// DueDate returns the scheduled date of the nth installment counted from the
// loan start date. Installment 1 falls one period after the start.
func DueDate(startDate time.Time, freq models.PaymentFrequency, installmentNumber int) time.Time {
	return AdvanceDate(startDate, freq, installmentNumber)
}
