package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmolinac/microcredit/pkg/ledger"
	"github.com/dmolinac/microcredit/pkg/metrics"
	"github.com/dmolinac/microcredit/pkg/models"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Server holds the ledger instance and the HTTP handlers.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     *zap.Logger
}

func NewServer(l *ledger.Ledger, s store.Storage, log *zap.Logger) *Server {
	return &Server{ledger: l, storage: s, log: log}
}

// dateOnly accepts "2006-01-02" dates in request bodies.
type dateOnly struct {
	time.Time
}

func (d *dateOnly) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes. Anything
// outside the taxonomy surfaces as an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, operation string, err error) {
	var status int
	var kind string
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, ledger.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInvalidState):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, ledger.ErrIneligibleClient):
		status, kind = http.StatusConflict, "ineligible_client"
	case errors.Is(err, ledger.ErrNoBalance):
		status, kind = http.StatusConflict, "no_balance"
	default:
		s.log.Error("internal error", zap.String("operation", operation), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal error"})
		return
	}
	metrics.DomainErrors.WithLabelValues(operation, kind).Inc()
	s.writeJSON(w, status, map[string]string{"error": kind, "message": err.Error()})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string          `json:"name"`
		DocumentID    string          `json:"document_id"`
		MonthlyIncome decimal.Decimal `json:"monthly_income"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	client, err := s.ledger.CreateClient(req.Name, req.DocumentID, req.MonthlyIncome)
	if err != nil {
		s.writeError(w, "create_client", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, client)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	client, err := s.ledger.GetClient(id)
	if err != nil {
		s.writeError(w, "get_client", err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

func (s *Server) listClientLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	loans, err := s.ledger.GetLoansForClient(id)
	if err != nil {
		s.writeError(w, "list_client_loans", err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) classifyClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	classification, err := s.ledger.ClassifyClient(id)
	if err != nil {
		s.writeError(w, "classify_client", err)
		return
	}
	s.writeJSON(w, http.StatusOK, classification)
}

func (s *Server) originateLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID         uuid.UUID       `json:"client_id"`
		TotalAmount      decimal.Decimal `json:"total_amount"`
		Installments     int             `json:"installments"`
		InterestRate     decimal.Decimal `json:"interest_rate"`
		InterestType     string          `json:"interest_type"`
		StartDate        dateOnly        `json:"start_date"`
		PaymentFrequency string          `json:"payment_frequency"`
		Notes            string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.OriginateLoan(ledger.OriginationRequest{
		ClientID:         req.ClientID,
		TotalAmount:      req.TotalAmount,
		Installments:     req.Installments,
		InterestRate:     req.InterestRate,
		InterestType:     models.InterestType(req.InterestType),
		StartDate:        req.StartDate.Time,
		PaymentFrequency: models.PaymentFrequency(req.PaymentFrequency),
		Notes:            req.Notes,
	})
	if err != nil {
		metrics.Operations.WithLabelValues("originate", "error").Inc()
		s.writeError(w, "originate", err)
		return
	}
	metrics.Operations.WithLabelValues("originate", "ok").Inc()
	s.writeJSON(w, http.StatusCreated, loan)
}

// loanView decorates the stored loan with the derived overdue flag.
type loanView struct {
	*models.Loan
	Overdue bool `json:"overdue"`
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, "get_loan", err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanView{Loan: loan, Overdue: loan.Overdue(s.ledger.Now())})
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, "list_loans", err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.ApproveLoan(id, req.ApprovedBy)
	if err != nil {
		metrics.Operations.WithLabelValues("approve", "error").Inc()
		s.writeError(w, "approve", err)
		return
	}
	metrics.Operations.WithLabelValues("approve", "ok").Inc()
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) applyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		PaymentDate    dateOnly        `json:"payment_date"`
		CapitalAmount  decimal.Decimal `json:"capital_amount"`
		InterestAmount decimal.Decimal `json:"interest_amount"`
		Notes          string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment, loan, err := s.ledger.ApplyPayment(ledger.PaymentRequest{
		LoanID:         id,
		PaymentDate:    req.PaymentDate.Time,
		CapitalAmount:  req.CapitalAmount,
		InterestAmount: req.InterestAmount,
		Notes:          req.Notes,
	})
	if err != nil {
		metrics.Operations.WithLabelValues("payment", "error").Inc()
		s.writeError(w, "payment", err)
		return
	}
	metrics.Operations.WithLabelValues("payment", "ok").Inc()
	metrics.PaymentsApplied.Inc()
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"payment": payment, "loan": loan})
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	payments, err := s.ledger.GetPayments(id)
	if err != nil {
		s.writeError(w, "list_payments", err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) changeFrequencyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		NewFrequency  string   `json:"new_frequency"`
		EffectiveDate dateOnly `json:"effective_date"`
		Reason        string   `json:"reason"`
		ChangedBy     string   `json:"changed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	change, loan, err := s.ledger.ChangeFrequency(ledger.FrequencyChangeRequest{
		LoanID:        id,
		NewFrequency:  models.PaymentFrequency(req.NewFrequency),
		EffectiveDate: req.EffectiveDate.Time,
		Reason:        req.Reason,
		ChangedBy:     req.ChangedBy,
	})
	if err != nil {
		metrics.Operations.WithLabelValues("frequency_change", "error").Inc()
		s.writeError(w, "frequency_change", err)
		return
	}
	metrics.Operations.WithLabelValues("frequency_change", "ok").Inc()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"change": change, "loan": loan})
}

func (s *Server) listFrequencyChangesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	changes, err := s.ledger.GetFrequencyChanges(id)
	if err != nil {
		s.writeError(w, "list_frequency_changes", err)
		return
	}
	s.writeJSON(w, http.StatusOK, changes)
}

func (s *Server) cancelLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	loan, err := s.ledger.CancelLoan(id, req.Reason)
	if err != nil {
		metrics.Operations.WithLabelValues("cancel", "error").Inc()
		s.writeError(w, "cancel", err)
		return
	}
	metrics.Operations.WithLabelValues("cancel", "ok").Inc()
	s.writeJSON(w, http.StatusOK, loan)
}

// Routes registers all handlers on the router.
func (s *Server) Routes(router *mux.Router) {
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	router.HandleFunc("/clients/{id}/loans", s.listClientLoansHandler).Methods("GET")
	router.HandleFunc("/clients/{id}/classification", s.classifyClientHandler).Methods("GET")

	router.HandleFunc("/loans", s.originateLoanHandler).Methods("POST")
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/approve", s.approveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.applyPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/frequency", s.changeFrequencyHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/frequency-changes", s.listFrequencyChangesHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/cancel", s.cancelLoanHandler).Methods("POST")
}
