package store

import (
	"errors"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations for clients, loans, payments and
// frequency-change history.
type Storage interface {
	CreateClient(client *models.Client) error
	GetClient(id uuid.UUID) (*models.Client, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	GetAllLoans() ([]*models.Loan, error)
	GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error)

	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)
	GetFrequencyChangesForLoan(loanID uuid.UUID) ([]*models.PaymentFrequencyChange, error)

	// WithinTx runs fn inside a single write transaction. The loan state read
	// through the Tx and the rows written by fn commit atomically; any error
	// from fn rolls everything back. Two concurrent calls for the same loan
	// serialize on the store's write lock, so racing payments cannot both read
	// the same prior-payment tail.
	WithinTx(fn func(tx Tx) error) error

	Close() error
}

// Tx is the unit-of-work handed to WithinTx callbacks.
type Tx interface {
	GetLoanForUpdate(id uuid.UUID) (*models.Loan, error)
	// LastPayment returns the payment with the highest installment number for
	// the loan, or nil if the loan has no payments yet.
	LastPayment(loanID uuid.UUID) (*models.Payment, error)
	CreatePayment(payment *models.Payment) error
	UpdateLoan(loan *models.Loan) error
	CreateFrequencyChange(change *models.PaymentFrequencyChange) error
}
