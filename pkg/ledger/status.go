package ledger

import (
	"fmt"

	"github.com/dmolinac/microcredit/pkg/models"
)

// Allowed status transitions. COMPLETED and CANCELLED are terminal; DEFAULTED
// is a derived display classification and never a transition target here.
var transitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanStatusPending: {models.LoanStatusActive, models.LoanStatusCancelled},
	models.LoanStatusActive:  {models.LoanStatusCompleted, models.LoanStatusCancelled},
}

func canTransition(from, to models.LoanStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves the loan to the target status or fails with ErrInvalidState.
func transition(loan *models.Loan, to models.LoanStatus) error {
	if !canTransition(loan.Status, to) {
		return fmt.Errorf("%w: cannot move loan %s from %s to %s", ErrInvalidState, loan.LoanNumber, loan.Status, to)
	}
	loan.Status = to
	return nil
}
