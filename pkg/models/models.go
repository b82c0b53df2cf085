package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusCompleted LoanStatus = "COMPLETED"
	LoanStatusDefaulted LoanStatus = "DEFAULTED" // display-only, never persisted by the engine
	LoanStatusCancelled LoanStatus = "CANCELLED"
)

// InterestType selects the base used for period interest.
type InterestType string

const (
	// InterestFixed computes interest on the original total amount every period.
	InterestFixed InterestType = "FIXED"
	// InterestDecreasing computes interest on the outstanding balance.
	InterestDecreasing InterestType = "DECREASING"
)

func (t InterestType) Valid() bool {
	return t == InterestFixed || t == InterestDecreasing
}

// PaymentFrequency is the cadence of scheduled installments.
type PaymentFrequency string

const (
	FrequencyDaily     PaymentFrequency = "DAILY"
	FrequencyWeekly    PaymentFrequency = "WEEKLY"
	FrequencyBiweekly  PaymentFrequency = "BIWEEKLY"
	FrequencyMonthly   PaymentFrequency = "MONTHLY"
	FrequencyQuarterly PaymentFrequency = "QUARTERLY"
)

func (f PaymentFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// Client is the minimal directory record the engine needs: eligibility and income.
type Client struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	DocumentID    string          `json:"document_id"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
	Blocked       bool            `json:"blocked"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Loan is the central ledger record.
//
// Invariants: 0 <= Balance <= TotalAmount; Balance == 0 iff Status == COMPLETED
// (terminal); RemainingInstallments >= 0.
type Loan struct {
	ID                       uuid.UUID        `json:"id"`
	LoanNumber               string           `json:"loan_number"`
	ClientID                 uuid.UUID        `json:"client_id"`
	TotalAmount              decimal.Decimal  `json:"total_amount"`
	Installments             int              `json:"installments"`
	RemainingInstallments    int              `json:"remaining_installments"`
	Balance                  decimal.Decimal  `json:"balance"`
	InterestRate             decimal.Decimal  `json:"interest_rate"` // percent per 30-day period
	InterestType             InterestType     `json:"interest_type"`
	FixedInterestAmount      decimal.Decimal  `json:"fixed_interest_amount"` // cached period interest for FIXED loans
	PaymentFrequency         PaymentFrequency `json:"payment_frequency"`
	FeeAmount                decimal.Decimal  `json:"fee_amount"`                 // baseline capital-only installment size
	CurrentInstallmentAmount decimal.Decimal  `json:"current_installment_amount"` // capital+interest due next
	StartDate                time.Time        `json:"start_date"`
	EndDate                  time.Time        `json:"end_date"`
	NextPaymentDate          *time.Time       `json:"next_payment_date,omitempty"`
	LastPaymentDate          *time.Time       `json:"last_payment_date,omitempty"`
	Status                   LoanStatus       `json:"status"`
	ApprovedAt               *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy               string           `json:"approved_by,omitempty"`
	Notes                    string           `json:"notes,omitempty"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// Overdue reports whether the loan has a scheduled date in the past with money
// still owed. DEFAULTED is derived from this at read time, never stored.
func (l *Loan) Overdue(now time.Time) bool {
	if l.Status != LoanStatusActive && l.Status != LoanStatusPending {
		return false
	}
	return l.NextPaymentDate != nil && l.NextPaymentDate.Before(now) && l.Balance.IsPositive()
}

// Payment is one settlement event against a loan. Rows are append-only.
//
// InstallmentNumber strictly increases per loan, independent of schedule
// adherence. PendingInterest is the interest shortfall carried into the next
// payment's expected-interest computation.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	LoanID            uuid.UUID       `json:"loan_id"`
	PaymentDate       time.Time       `json:"payment_date"`
	InstallmentNumber int             `json:"installment_number"`
	CapitalAmount     decimal.Decimal `json:"capital_amount"`
	InterestAmount    decimal.Decimal `json:"interest_amount"`
	Amount            decimal.Decimal `json:"amount"` // capital + interest
	PendingInterest   decimal.Decimal `json:"pending_interest"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PaymentFrequencyChange is an immutable history record of a cadence change.
type PaymentFrequencyChange struct {
	ID                uuid.UUID        `json:"id"`
	LoanID            uuid.UUID        `json:"loan_id"`
	PreviousFrequency PaymentFrequency `json:"previous_frequency"`
	NewFrequency      PaymentFrequency `json:"new_frequency"`
	EffectiveDate     time.Time        `json:"effective_date"`
	PreviousEndDate   time.Time        `json:"previous_end_date"`
	NewEndDate        time.Time        `json:"new_end_date"`
	PreviousFeeAmount decimal.Decimal  `json:"previous_fee_amount"`
	NewFeeAmount      decimal.Decimal  `json:"new_fee_amount"`
	Reason            string           `json:"reason,omitempty"`
	ChangedBy         string           `json:"changed_by,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}
