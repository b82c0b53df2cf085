// Package risk derives a client's income category, payment behavior and risk
// level from their loan and payment history. It reuses the schedule math to
// compute the date each installment was expected on.
package risk

import (
	"time"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/dmolinac/microcredit/pkg/schedule"
	"github.com/shopspring/decimal"
)

type IncomeCategory string

const (
	IncomeA IncomeCategory = "A" // >= 10,000,000
	IncomeB IncomeCategory = "B" // >= 6,000,000
	IncomeC IncomeCategory = "C" // >= 1,000,000
	IncomeD IncomeCategory = "D"
)

type PaymentBehavior string

const (
	BehaviorExcellent PaymentBehavior = "EXCELLENT"
	BehaviorGood      PaymentBehavior = "GOOD"
	BehaviorRegular   PaymentBehavior = "REGULAR"
	BehaviorPoor      PaymentBehavior = "POOR"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// A payment counts as late only when it lands more than this many days after
// its expected due date.
const lateGraceDays = 5

var (
	incomeThresholdA = decimal.NewFromInt(10_000_000)
	incomeThresholdB = decimal.NewFromInt(6_000_000)
	incomeThresholdC = decimal.NewFromInt(1_000_000)

	lateRateGood    = 0.10
	lateRateRegular = 0.25
	lateRateSevere  = 0.15
)

// LoanHistory pairs a loan with its payments, ordered by installment number.
type LoanHistory struct {
	Loan     *models.Loan
	Payments []*models.Payment
}

// Classification is the profiler output.
type Classification struct {
	IncomeCategory  IncomeCategory  `json:"income_category"`
	PaymentBehavior PaymentBehavior `json:"payment_behavior"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	LateRate        float64         `json:"late_rate"`
	OverdueLoans    int             `json:"overdue_loans"`
}

// Classify derives the client profile. The current time is an explicit
// parameter so overdue checks stay deterministic.
func Classify(monthlyIncome decimal.Decimal, history []LoanHistory, now time.Time) Classification {
	income := classifyIncome(monthlyIncome)

	if len(history) == 0 {
		// No loan history: nothing to judge behavior on.
		return Classification{
			IncomeCategory:  income,
			PaymentBehavior: BehaviorExcellent,
			RiskLevel:       RiskMedium,
		}
	}

	totalPayments, lateCount, overdue := 0, 0, 0
	for _, h := range history {
		if h.Loan.Overdue(now) {
			overdue++
		}
		for _, p := range h.Payments {
			totalPayments++
			if isLate(h.Loan, p) {
				lateCount++
			}
		}
	}

	lateRate := 0.0
	if totalPayments > 0 {
		lateRate = float64(lateCount) / float64(totalPayments)
	}

	behavior := classifyBehavior(lateRate)
	// A currently-overdue loan downgrades the grade, but only when the client
	// also has an actual late-payment history: overdue status alone is not
	// penalized.
	if overdue > 0 && lateRate > 0 {
		if overdue >= 2 || lateRate > lateRateSevere {
			behavior = BehaviorPoor
		} else {
			behavior = downgrade(behavior)
		}
	}

	return Classification{
		IncomeCategory:  income,
		PaymentBehavior: behavior,
		RiskLevel:       riskMatrix[income][behavior],
		LateRate:        lateRate,
		OverdueLoans:    overdue,
	}
}

func classifyIncome(monthlyIncome decimal.Decimal) IncomeCategory {
	switch {
	case monthlyIncome.GreaterThanOrEqual(incomeThresholdA):
		return IncomeA
	case monthlyIncome.GreaterThanOrEqual(incomeThresholdB):
		return IncomeB
	case monthlyIncome.GreaterThanOrEqual(incomeThresholdC):
		return IncomeC
	default:
		return IncomeD
	}
}

// isLate compares the actual payment date against the expected due date of
// its installment number under the loan's cadence.
func isLate(loan *models.Loan, p *models.Payment) bool {
	expected := schedule.DueDate(loan.StartDate, loan.PaymentFrequency, p.InstallmentNumber)
	return p.PaymentDate.After(expected.AddDate(0, 0, lateGraceDays))
}

func classifyBehavior(lateRate float64) PaymentBehavior {
	switch {
	case lateRate == 0:
		return BehaviorExcellent
	case lateRate <= lateRateGood:
		return BehaviorGood
	case lateRate <= lateRateRegular:
		return BehaviorRegular
	default:
		return BehaviorPoor
	}
}

func downgrade(b PaymentBehavior) PaymentBehavior {
	switch b {
	case BehaviorExcellent:
		return BehaviorGood
	case BehaviorGood:
		return BehaviorRegular
	default:
		return BehaviorPoor
	}
}

var riskMatrix = map[IncomeCategory]map[PaymentBehavior]RiskLevel{
	IncomeA: {BehaviorExcellent: RiskLow, BehaviorGood: RiskLow, BehaviorRegular: RiskMedium, BehaviorPoor: RiskHigh},
	IncomeB: {BehaviorExcellent: RiskLow, BehaviorGood: RiskMedium, BehaviorRegular: RiskMedium, BehaviorPoor: RiskHigh},
	IncomeC: {BehaviorExcellent: RiskMedium, BehaviorGood: RiskMedium, BehaviorRegular: RiskHigh, BehaviorPoor: RiskHigh},
	IncomeD: {BehaviorExcellent: RiskMedium, BehaviorGood: RiskHigh, BehaviorRegular: RiskHigh, BehaviorPoor: RiskHigh},
}
