package ledger

import (
	"errors"
	"fmt"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/dmolinac/microcredit/pkg/risk"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateClient registers a client in the directory.
func (l *Ledger) CreateClient(name, documentID string, monthlyIncome decimal.Decimal) (*models.Client, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrValidation)
	}
	if monthlyIncome.IsNegative() {
		return nil, fmt.Errorf("%w: monthly income must not be negative", ErrValidation)
	}
	client := &models.Client{
		ID:            uuid.New(),
		Name:          name,
		DocumentID:    documentID,
		MonthlyIncome: monthlyIncome,
		CreatedAt:     l.now(),
	}
	if err := l.storage.CreateClient(client); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	return client, nil
}

// GetClient retrieves a client by ID.
func (l *Ledger) GetClient(id uuid.UUID) (*models.Client, error) {
	client, err := l.storage.GetClient(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s", ErrNotFound, id)
		}
		return nil, err
	}
	return client, nil
}

// ClassifyClient builds the risk classification from the client's full loan
// and payment history.
func (l *Ledger) ClassifyClient(clientID uuid.UUID) (risk.Classification, error) {
	client, err := l.GetClient(clientID)
	if err != nil {
		return risk.Classification{}, err
	}

	loans, err := l.storage.GetLoansForClient(clientID)
	if err != nil {
		return risk.Classification{}, fmt.Errorf("failed to load loans: %w", err)
	}

	history := make([]risk.LoanHistory, 0, len(loans))
	for _, loan := range loans {
		payments, err := l.storage.GetPaymentsForLoan(loan.ID)
		if err != nil {
			return risk.Classification{}, fmt.Errorf("failed to load payments for loan %s: %w", loan.ID, err)
		}
		history = append(history, risk.LoanHistory{Loan: loan, Payments: payments})
	}

	return risk.Classify(client.MonthlyIncome, history, l.now()), nil
}
