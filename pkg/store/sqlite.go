package store

import (
	"database/sql"
	"fmt"

	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
// Write transactions open with BEGIN IMMEDIATE (via _txlock) so concurrent
// payment submissions for the same loan serialize on the database write lock.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		monthly_income TEXT NOT NULL DEFAULT '0',
		blocked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		loan_number TEXT NOT NULL,
		client_id TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		installments INTEGER NOT NULL,
		remaining_installments INTEGER NOT NULL,
		balance TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		interest_type TEXT NOT NULL,
		fixed_interest_amount TEXT NOT NULL DEFAULT '0',
		payment_frequency TEXT NOT NULL,
		fee_amount TEXT NOT NULL DEFAULT '0',
		current_installment_amount TEXT NOT NULL DEFAULT '0',
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		next_payment_date DATETIME,
		last_payment_date DATETIME,
		status TEXT NOT NULL,
		approved_at DATETIME,
		approved_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(client_id) REFERENCES clients(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		installment_number INTEGER NOT NULL,
		capital_amount TEXT NOT NULL,
		interest_amount TEXT NOT NULL,
		amount TEXT NOT NULL,
		pending_interest TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE(loan_id, installment_number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS frequency_changes (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		previous_frequency TEXT NOT NULL,
		new_frequency TEXT NOT NULL,
		effective_date DATETIME NOT NULL,
		previous_end_date DATETIME NOT NULL,
		new_end_date DATETIME NOT NULL,
		previous_fee_amount TEXT NOT NULL,
		new_fee_amount TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		changed_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, loan_number, client_id, total_amount, installments, remaining_installments,
	balance, interest_rate, interest_type, fixed_interest_amount, payment_frequency, fee_amount,
	current_installment_amount, start_date, end_date, next_payment_date, last_payment_date,
	status, approved_at, approved_by, notes, created_at, updated_at`

// CreateClient inserts a new client.
func (s *SQLiteStore) CreateClient(client *models.Client) error {
	_, err := s.db.Exec(
		`INSERT INTO clients (id, name, document_id, monthly_income, blocked, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		client.ID.String(), client.Name, client.DocumentID, client.MonthlyIncome, client.Blocked, client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(id uuid.UUID) (*models.Client, error) {
	var client models.Client
	var idStr string
	row := s.db.QueryRow(`SELECT id, name, document_id, monthly_income, blocked, created_at FROM clients WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &client.Name, &client.DocumentID, &client.MonthlyIncome, &client.Blocked, &client.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	client.ID = uuid.MustParse(idStr)
	return &client, nil
}

// CreateLoan inserts a new loan.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.LoanNumber, loan.ClientID.String(), loan.TotalAmount, loan.Installments,
		loan.RemainingInstallments, loan.Balance, loan.InterestRate, string(loan.InterestType),
		loan.FixedInterestAmount, string(loan.PaymentFrequency), loan.FeeAmount,
		loan.CurrentInstallmentAmount, loan.StartDate, loan.EndDate, loan.NextPaymentDate,
		loan.LastPaymentDate, string(loan.Status), loan.ApprovedAt, loan.ApprovedBy, loan.Notes,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, clientIDStr, interestType, frequency, status string
	var nextPayment, lastPayment, approvedAt sql.NullTime
	err := row.Scan(&idStr, &loan.LoanNumber, &clientIDStr, &loan.TotalAmount, &loan.Installments,
		&loan.RemainingInstallments, &loan.Balance, &loan.InterestRate, &interestType,
		&loan.FixedInterestAmount, &frequency, &loan.FeeAmount, &loan.CurrentInstallmentAmount,
		&loan.StartDate, &loan.EndDate, &nextPayment, &lastPayment, &status,
		&approvedAt, &loan.ApprovedBy, &loan.Notes, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.ClientID = uuid.MustParse(clientIDStr)
	loan.InterestType = models.InterestType(interestType)
	loan.PaymentFrequency = models.PaymentFrequency(frequency)
	loan.Status = models.LoanStatus(status)
	if nextPayment.Valid {
		loan.NextPaymentDate = &nextPayment.Time
	}
	if lastPayment.Valid {
		loan.LastPaymentDate = &lastPayment.Time
	}
	if approvedAt.Valid {
		loan.ApprovedAt = &approvedAt.Time
	}
	return &loan, nil
}

func (s *SQLiteStore) getLoan(q interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(q.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return s.getLoan(s.db, id)
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

// GetLoansForClient retrieves all loans owned by a client.
func (s *SQLiteStore) GetLoansForClient(clientID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE client_id = ? ORDER BY created_at`, clientID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for client %s: %w", clientID, err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

const paymentColumns = `id, loan_id, payment_date, installment_number, capital_amount, interest_amount,
	amount, pending_interest, notes, created_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanIDStr string
	err := row.Scan(&idStr, &loanIDStr, &p.PaymentDate, &p.InstallmentNumber, &p.CapitalAmount,
		&p.InterestAmount, &p.Amount, &p.PendingInterest, &p.Notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.LoanID = uuid.MustParse(loanIDStr)
	return &p, nil
}

// GetPaymentsForLoan retrieves a loan's payments in installment order.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY installment_number ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// GetFrequencyChangesForLoan retrieves a loan's frequency-change history.
func (s *SQLiteStore) GetFrequencyChangesForLoan(loanID uuid.UUID) ([]*models.PaymentFrequencyChange, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, previous_frequency, new_frequency, effective_date, previous_end_date,
		new_end_date, previous_fee_amount, new_fee_amount, reason, changed_by, created_at
		FROM frequency_changes WHERE loan_id = ? ORDER BY created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get frequency changes for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var changes []*models.PaymentFrequencyChange
	for rows.Next() {
		var c models.PaymentFrequencyChange
		var idStr, loanIDStr, prevFreq, newFreq string
		if err := rows.Scan(&idStr, &loanIDStr, &prevFreq, &newFreq, &c.EffectiveDate, &c.PreviousEndDate,
			&c.NewEndDate, &c.PreviousFeeAmount, &c.NewFeeAmount, &c.Reason, &c.ChangedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan frequency change row: %w", err)
		}
		c.ID = uuid.MustParse(idStr)
		c.LoanID = uuid.MustParse(loanIDStr)
		c.PreviousFrequency = models.PaymentFrequency(prevFreq)
		c.NewFrequency = models.PaymentFrequency(newFreq)
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return changes, nil
}

// sqliteTx implements Tx over a live sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

// WithinTx runs fn in a single write transaction, rolling back on any error.
func (s *SQLiteStore) WithinTx(fn func(tx Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetLoanForUpdate(id uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(t.tx.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (t *sqliteTx) LastPayment(loanID uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY installment_number DESC LIMIT 1`,
		loanID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last payment: %w", err)
	}
	return p, nil
}

func (t *sqliteTx) CreatePayment(p *models.Payment) error {
	_, err := t.tx.Exec(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.PaymentDate, p.InstallmentNumber, p.CapitalAmount,
		p.InterestAmount, p.Amount, p.PendingInterest, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateLoan(loan *models.Loan) error {
	result, err := t.tx.Exec(
		`UPDATE loans SET remaining_installments = ?, balance = ?, fixed_interest_amount = ?,
		payment_frequency = ?, fee_amount = ?, current_installment_amount = ?, end_date = ?,
		next_payment_date = ?, last_payment_date = ?, status = ?, approved_at = ?, approved_by = ?,
		notes = ?, updated_at = ? WHERE id = ?`,
		loan.RemainingInstallments, loan.Balance, loan.FixedInterestAmount,
		string(loan.PaymentFrequency), loan.FeeAmount, loan.CurrentInstallmentAmount, loan.EndDate,
		loan.NextPaymentDate, loan.LastPaymentDate, string(loan.Status), loan.ApprovedAt,
		loan.ApprovedBy, loan.Notes, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) CreateFrequencyChange(c *models.PaymentFrequencyChange) error {
	_, err := t.tx.Exec(
		`INSERT INTO frequency_changes (id, loan_id, previous_frequency, new_frequency, effective_date,
		previous_end_date, new_end_date, previous_fee_amount, new_fee_amount, reason, changed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.LoanID.String(), string(c.PreviousFrequency), string(c.NewFrequency),
		c.EffectiveDate, c.PreviousEndDate, c.NewEndDate, c.PreviousFeeAmount, c.NewFeeAmount,
		c.Reason, c.ChangedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create frequency change: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
