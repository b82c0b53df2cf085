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

// FrequencyChangeRequest carries a mid-life payment cadence change.
type FrequencyChangeRequest struct {
	LoanID        uuid.UUID
	NewFrequency  models.PaymentFrequency
	EffectiveDate time.Time
	Reason        string
	ChangedBy     string
}

// ChangeFrequency recalculates the end date and the capital-only fee baseline
// for an ACTIVE loan under a new cadence and records the change as an
// immutable history entry. Balance, remaining installments and payment
// history are untouched; period interest keeps being computed dynamically at
// each future payment.
func (l *Ledger) ChangeFrequency(req FrequencyChangeRequest) (*models.PaymentFrequencyChange, *models.Loan, error) {
	if !req.NewFrequency.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown payment frequency %q", ErrValidation, req.NewFrequency)
	}
	if req.EffectiveDate.IsZero() {
		return nil, nil, fmt.Errorf("%w: effective date is required", ErrValidation)
	}

	var (
		change  *models.PaymentFrequencyChange
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
			return fmt.Errorf("%w: loan %s is %s, frequency changes require ACTIVE", ErrInvalidState, loan.LoanNumber, loan.Status)
		}
		if loan.RemainingInstallments < 1 {
			return fmt.Errorf("%w: loan %s has no remaining installments", ErrValidation, loan.LoanNumber)
		}

		newEndDate := schedule.AdvanceDate(req.EffectiveDate, req.NewFrequency, loan.RemainingInstallments)
		newFee := loan.Balance.DivRound(decimal.NewFromInt(int64(loan.RemainingInstallments)), 2)

		nowTS := l.now()
		change = &models.PaymentFrequencyChange{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			PreviousFrequency: loan.PaymentFrequency,
			NewFrequency:      req.NewFrequency,
			EffectiveDate:     req.EffectiveDate,
			PreviousEndDate:   loan.EndDate,
			NewEndDate:        newEndDate,
			PreviousFeeAmount: loan.FeeAmount,
			NewFeeAmount:      newFee,
			Reason:            req.Reason,
			ChangedBy:         req.ChangedBy,
			CreatedAt:         nowTS,
		}

		loan.PaymentFrequency = req.NewFrequency
		loan.EndDate = newEndDate
		loan.FeeAmount = newFee
		loan.UpdatedAt = nowTS

		if err := tx.CreateFrequencyChange(change); err != nil {
			return fmt.Errorf("failed to store frequency change: %w", err)
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

	l.log.Info("frequency changed",
		zap.String("loan_number", updated.LoanNumber),
		zap.String("from", string(change.PreviousFrequency)),
		zap.String("to", string(change.NewFrequency)))
	l.sink.Record(audit.Event{
		LoanID:      updated.ID,
		Action:      "loan.frequency_change",
		Description: fmt.Sprintf("loan %s frequency changed from %s to %s", updated.LoanNumber, change.PreviousFrequency, change.NewFrequency),
		OldData:     before,
		NewData:     updated,
		Actor:       req.ChangedBy,
		Timestamp:   l.now(),
	})
	return change, updated, nil
}
