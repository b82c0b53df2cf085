// Package ledger implements the loan amortization and payment engine:
// origination, lifecycle transitions, payment application with carried
// interest, and mid-life frequency changes.
package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dmolinac/microcredit/pkg/audit"
	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/dmolinac/microcredit/pkg/schedule"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultMaxInstallments = 120

// paymentTolerance absorbs rounding drift from period-interest math: amounts
// within 2 currency units of the balance settle the loan exactly.
var paymentTolerance = decimal.NewFromInt(2)

// Ledger handles the business logic for loans and payments.
type Ledger struct {
	storage         store.Storage
	sink            audit.Sink
	log             *zap.Logger
	randSrc         rand.Source // random source for loan number generation
	now             func() time.Time
	maxInstallments int
}

// NewLedger creates a Ledger over the given storage. The audit sink and
// logger may not be nil; pass audit.NopSink and zap.NewNop in tests.
func NewLedger(s store.Storage, sink audit.Sink, log *zap.Logger) *Ledger {
	return &Ledger{
		storage:         s,
		sink:            sink,
		log:             log,
		randSrc:         rand.NewSource(time.Now().UnixNano()),
		now:             time.Now,
		maxInstallments: DefaultMaxInstallments,
	}
}

// SetClock replaces the time source; overdue checks and record timestamps use
// it so tests stay deterministic.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// SetMaxInstallments overrides the configured installment-count ceiling.
func (l *Ledger) SetMaxInstallments(max int) {
	if max > 0 {
		l.maxInstallments = max
	}
}

// newLoanNumber builds a human-readable loan number.
func (l *Ledger) newLoanNumber() string {
	r := rand.New(l.randSrc)
	return fmt.Sprintf("LN-%06d", r.Intn(1000000))
}

// OriginationRequest carries the inputs for a new loan.
type OriginationRequest struct {
	ClientID         uuid.UUID
	TotalAmount      decimal.Decimal
	Installments     int
	InterestRate     decimal.Decimal // percent per 30-day period
	InterestType     models.InterestType
	StartDate        time.Time
	PaymentFrequency models.PaymentFrequency
	Notes            string
}

func (l *Ledger) validateOrigination(req OriginationRequest) error {
	if !req.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if req.Installments < 1 || req.Installments > l.maxInstallments {
		return fmt.Errorf("%w: installments must be between 1 and %d", ErrValidation, l.maxInstallments)
	}
	if !req.InterestRate.IsPositive() || req.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: interest rate must be in (0, 100]", ErrValidation)
	}
	if !req.InterestType.Valid() {
		return fmt.Errorf("%w: unknown interest type %q", ErrValidation, req.InterestType)
	}
	if !req.PaymentFrequency.Valid() {
		return fmt.Errorf("%w: unknown payment frequency %q", ErrValidation, req.PaymentFrequency)
	}
	if req.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrValidation)
	}
	return nil
}

// OriginateLoan creates a loan in status PENDING. The first installment
// amount and the end date are derived from the schedule math; no money moves
// until the loan is approved and paid against.
func (l *Ledger) OriginateLoan(req OriginationRequest) (*models.Loan, error) {
	if err := l.validateOrigination(req); err != nil {
		return nil, err
	}

	client, err := l.storage.GetClient(req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s", ErrNotFound, req.ClientID)
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if client.Blocked {
		return nil, fmt.Errorf("%w: client %s is blocked", ErrIneligibleClient, client.ID)
	}

	capitalPer := req.TotalAmount.DivRound(decimal.NewFromInt(int64(req.Installments)), 2)
	periodDays := schedule.PeriodDays(req.PaymentFrequency, req.StartDate)
	firstInterest := schedule.PeriodInterest(req.TotalAmount, req.InterestRate, periodDays).Round(0)

	fixedInterest := decimal.Zero
	feeAmount := capitalPer
	if req.InterestType == models.InterestFixed {
		fixedInterest = firstInterest
		feeAmount = capitalPer.Add(firstInterest)
	}

	nowTS := l.now()
	nextDue := schedule.AdvanceDate(req.StartDate, req.PaymentFrequency, 1)
	loan := &models.Loan{
		ID:                       uuid.New(),
		LoanNumber:               l.newLoanNumber(),
		ClientID:                 client.ID,
		TotalAmount:              req.TotalAmount,
		Installments:             req.Installments,
		RemainingInstallments:    req.Installments,
		Balance:                  req.TotalAmount,
		InterestRate:             req.InterestRate,
		InterestType:             req.InterestType,
		FixedInterestAmount:      fixedInterest,
		PaymentFrequency:         req.PaymentFrequency,
		FeeAmount:                feeAmount,
		CurrentInstallmentAmount: capitalPer.Add(firstInterest),
		StartDate:                req.StartDate,
		EndDate:                  schedule.AdvanceDate(req.StartDate, req.PaymentFrequency, req.Installments),
		NextPaymentDate:          &nextDue,
		Status:                   models.LoanStatusPending,
		Notes:                    req.Notes,
		CreatedAt:                nowTS,
		UpdatedAt:                nowTS,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.Info("loan originated",
		zap.String("loan_number", loan.LoanNumber),
		zap.String("client_id", client.ID.String()),
		zap.String("total_amount", loan.TotalAmount.String()),
		zap.String("frequency", string(loan.PaymentFrequency)))
	l.sink.Record(audit.Event{
		LoanID:      loan.ID,
		Action:      "loan.originate",
		Description: fmt.Sprintf("loan %s originated for %s", loan.LoanNumber, loan.TotalAmount),
		NewData:     loan,
		Timestamp:   nowTS,
	})
	return loan, nil
}

// ApproveLoan moves a PENDING loan to ACTIVE.
func (l *Ledger) ApproveLoan(loanID uuid.UUID, approvedBy string) (*models.Loan, error) {
	var updated *models.Loan
	var before models.Loan
	err := l.storage.WithinTx(func(tx store.Tx) error {
		loan, err := l.loadLoan(tx, loanID)
		if err != nil {
			return err
		}
		before = *loan
		if err := transition(loan, models.LoanStatusActive); err != nil {
			return err
		}
		nowTS := l.now()
		loan.ApprovedAt = &nowTS
		loan.ApprovedBy = approvedBy
		loan.UpdatedAt = nowTS
		if err := tx.UpdateLoan(loan); err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("loan approved", zap.String("loan_number", updated.LoanNumber), zap.String("approved_by", approvedBy))
	l.sink.Record(audit.Event{
		LoanID:      updated.ID,
		Action:      "loan.approve",
		Description: fmt.Sprintf("loan %s approved", updated.LoanNumber),
		OldData:     before,
		NewData:     updated,
		Actor:       approvedBy,
		Timestamp:   l.now(),
	})
	return updated, nil
}

// CancelLoan cancels a PENDING or ACTIVE loan. The outstanding balance and
// the payment history are preserved for audit; only the schedule fields are
// cleared.
func (l *Ledger) CancelLoan(loanID uuid.UUID, reason string) (*models.Loan, error) {
	var updated *models.Loan
	var before models.Loan
	err := l.storage.WithinTx(func(tx store.Tx) error {
		loan, err := l.loadLoan(tx, loanID)
		if err != nil {
			return err
		}
		before = *loan
		if err := transition(loan, models.LoanStatusCancelled); err != nil {
			return err
		}
		loan.NextPaymentDate = nil
		loan.CurrentInstallmentAmount = decimal.Zero
		if reason != "" {
			if loan.Notes != "" {
				loan.Notes += "; "
			}
			loan.Notes += "cancelled: " + reason
		}
		loan.UpdatedAt = l.now()
		if err := tx.UpdateLoan(loan); err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("loan cancelled", zap.String("loan_number", updated.LoanNumber), zap.String("reason", reason))
	l.sink.Record(audit.Event{
		LoanID:      updated.ID,
		Action:      "loan.cancel",
		Description: fmt.Sprintf("loan %s cancelled: %s", updated.LoanNumber, reason),
		OldData:     before,
		NewData:     updated,
		Timestamp:   l.now(),
	})
	return updated, nil
}

// loadLoan fetches a loan inside a transaction, mapping missing rows onto the
// domain taxonomy.
func (l *Ledger) loadLoan(tx store.Tx, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := tx.GetLoanForUpdate(loanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan %s", ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("failed to load loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan %s", ErrNotFound, id)
		}
		return nil, err
	}
	return loan, nil
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// GetLoansForClient retrieves all loans owned by a client.
func (l *Ledger) GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error) {
	return l.storage.GetLoansForClient(clientID)
}

// GetPayments retrieves the payment history for a loan in installment order.
func (l *Ledger) GetPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	return l.storage.GetPaymentsForLoan(loanID)
}

// GetFrequencyChanges retrieves the frequency-change history for a loan.
func (l *Ledger) GetFrequencyChanges(loanID uuid.UUID) ([]*models.PaymentFrequencyChange, error) {
	return l.storage.GetFrequencyChangesForLoan(loanID)
}

// Now exposes the ledger clock for read-side overdue checks.
func (l *Ledger) Now() time.Time {
	return l.now()
}
