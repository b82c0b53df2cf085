package ledger

import (
	"fmt"
	"time"

	"github.com/dmolinac/microcredit/pkg/audit"
	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/dmolinac/microcredit/pkg/schedule"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentRequest carries a tendered payment split into capital and interest.
type PaymentRequest struct {
	LoanID         uuid.UUID
	PaymentDate    time.Time
	CapitalAmount  decimal.Decimal
	InterestAmount decimal.Decimal
	Notes          string
}

func validatePayment(req PaymentRequest) error {
	if req.CapitalAmount.IsNegative() || req.InterestAmount.IsNegative() {
		return fmt.Errorf("%w: payment amounts must not be negative", ErrValidation)
	}
	if !req.CapitalAmount.Add(req.InterestAmount).IsPositive() {
		return fmt.Errorf("%w: payment must be greater than zero", ErrValidation)
	}
	if req.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date is required", ErrValidation)
	}
	return nil
}

// ApplyPayment applies a payment against an ACTIVE loan. The prior payment
// tail supplies the carried pending interest and the reference date for the
// day count; the whole read-modify-write runs in one store transaction so
// racing submissions cannot assign the same installment number or double-count
// the carried interest.
func (l *Ledger) ApplyPayment(req PaymentRequest) (*models.Payment, *models.Loan, error) {
	if err := validatePayment(req); err != nil {
		return nil, nil, err
	}

	var (
		payment *models.Payment
		updated *models.Loan
		before  models.Loan
	)
	err := l.storage.WithinTx(func(tx store.Tx) error {
		loan, err := l.loadLoan(tx, req.LoanID)
		if err != nil {
			return err
		}
		before = *loan
		if loan.Status != models.LoanStatusActive {
			return fmt.Errorf("%w: loan %s is %s, payments require ACTIVE", ErrInvalidState, loan.LoanNumber, loan.Status)
		}
		if !loan.Balance.IsPositive() {
			return fmt.Errorf("%w: loan %s", ErrNoBalance, loan.LoanNumber)
		}

		prior, err := tx.LastPayment(loan.ID)
		if err != nil {
			return fmt.Errorf("failed to load prior payment: %w", err)
		}
		referenceDate := loan.StartDate
		carried := decimal.Zero
		installmentNumber := 1
		if prior != nil {
			referenceDate = prior.PaymentDate
			carried = prior.PendingInterest
			installmentNumber = prior.InstallmentNumber + 1
		}

		// Capital within the tolerance band of the full balance settles the
		// loan exactly, so rounding drift never leaves a residual fraction.
		capital := req.CapitalAmount
		if capital.GreaterThan(loan.Balance) || loan.Balance.Sub(capital).LessThanOrEqual(paymentTolerance) {
			capital = loan.Balance
		}

		days := schedule.ElapsedDays(loan.PaymentFrequency, referenceDate, req.PaymentDate)
		interestBase := loan.Balance
		if loan.InterestType == models.InterestFixed {
			interestBase = loan.TotalAmount
		}
		expectedInterest := schedule.PeriodInterest(interestBase, loan.InterestRate, days).Round(0).Add(carried)

		// Underpaid interest carries forward; overpaid interest is accepted
		// as tendered without an overpayment concept.
		shortfall := expectedInterest.Sub(req.InterestAmount)
		if shortfall.IsNegative() {
			shortfall = decimal.Zero
		}

		newBalance := loan.Balance.Sub(capital)
		if newBalance.IsNegative() || newBalance.LessThanOrEqual(paymentTolerance) {
			newBalance = decimal.Zero
		}

		remaining := loan.RemainingInstallments - 1
		if remaining < 0 {
			remaining = 0
		}

		// The schedule stays anchored to its original cadence: the next date
		// advances from the previously scheduled date, not the actual payment
		// date.
		var nextDue *time.Time
		anchor := req.PaymentDate
		if newBalance.IsPositive() {
			if loan.NextPaymentDate != nil {
				anchor = *loan.NextPaymentDate
			}
			nd := schedule.AdvanceDate(anchor, loan.PaymentFrequency, 1)
			nextDue = &nd
			anchor = nd
		}

		nextInstallment := decimal.Zero
		if newBalance.IsPositive() {
			projectionBase := newBalance
			if loan.InterestType == models.InterestFixed {
				projectionBase = loan.TotalAmount
			}
			nextInterest := schedule.PeriodInterest(projectionBase, loan.InterestRate, schedule.PeriodDays(loan.PaymentFrequency, anchor)).Round(0)
			capitalPer := newBalance
			if remaining > 0 {
				capitalPer = newBalance.DivRound(decimal.NewFromInt(int64(remaining)), 2)
			}
			nextInstallment = capitalPer.Add(nextInterest)
		}

		nowTS := l.now()
		payment = &models.Payment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			PaymentDate:       req.PaymentDate,
			InstallmentNumber: installmentNumber,
			CapitalAmount:     capital,
			InterestAmount:    req.InterestAmount,
			Amount:            capital.Add(req.InterestAmount),
			PendingInterest:   shortfall,
			Notes:             req.Notes,
			CreatedAt:         nowTS,
		}

		loan.Balance = newBalance
		loan.RemainingInstallments = remaining
		loan.CurrentInstallmentAmount = nextInstallment
		loan.NextPaymentDate = nextDue
		paidAt := req.PaymentDate
		loan.LastPaymentDate = &paidAt
		loan.UpdatedAt = nowTS
		if newBalance.IsZero() {
			if err := transition(loan, models.LoanStatusCompleted); err != nil {
				return err
			}
		}

		if err := tx.CreatePayment(payment); err != nil {
			return fmt.Errorf("failed to store payment: %w", err)
		}
		if err := tx.UpdateLoan(loan); err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("payment applied",
		zap.String("loan_number", updated.LoanNumber),
		zap.Int("installment", payment.InstallmentNumber),
		zap.String("capital", payment.CapitalAmount.String()),
		zap.String("interest", payment.InterestAmount.String()),
		zap.String("pending_interest", payment.PendingInterest.String()),
		zap.String("balance", updated.Balance.String()))
	l.sink.Record(audit.Event{
		LoanID:      updated.ID,
		Action:      "loan.payment",
		Description: fmt.Sprintf("installment %d of %s applied to loan %s", payment.InstallmentNumber, payment.Amount, updated.LoanNumber),
		OldData:     before,
		NewData:     updated,
		Timestamp:   l.now(),
	})
	return payment, updated, nil
}
