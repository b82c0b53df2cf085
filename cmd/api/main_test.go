package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmolinac/microcredit/pkg/audit"
	"github.com/dmolinac/microcredit/pkg/ledger"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := ledger.NewLedger(s, audit.NopSink{}, zap.NewNop())
	l.SetClock(func() time.Time {
		return time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	})

	router := mux.NewRouter()
	NewServer(l, s, zap.NewNop()).Routes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_FullLoanLifecycle(t *testing.T) {
	ts := newTestServer(t)

	var client struct {
		ID string `json:"id"`
	}
	status := doJSON(t, ts, http.MethodPost, "/clients", map[string]interface{}{
		"name":           "Maria Gomez",
		"document_id":    "CC-100200300",
		"monthly_income": "2500000",
	}, &client)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, client.ID)

	var loan struct {
		ID                       string `json:"id"`
		LoanNumber               string `json:"loan_number"`
		Status                   string `json:"status"`
		Balance                  string `json:"balance"`
		FeeAmount                string `json:"fee_amount"`
		CurrentInstallmentAmount string `json:"current_installment_amount"`
		RemainingInstallments    int    `json:"remaining_installments"`
	}
	status = doJSON(t, ts, http.MethodPost, "/loans", map[string]interface{}{
		"client_id":         client.ID,
		"total_amount":      "1000000",
		"installments":      10,
		"interest_rate":     "2",
		"interest_type":     "DECREASING",
		"start_date":        "2024-01-15",
		"payment_frequency": "MONTHLY",
	}, &loan)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "PENDING", loan.Status)
	assert.Regexp(t, `^LN-\d{6}$`, loan.LoanNumber)
	assert.Equal(t, "1000000", loan.Balance)
	assert.Equal(t, "100000", loan.FeeAmount)
	assert.Equal(t, "120000", loan.CurrentInstallmentAmount)
	assert.Equal(t, 10, loan.RemainingInstallments)

	var approved struct {
		Status     string `json:"status"`
		ApprovedBy string `json:"approved_by"`
	}
	status = doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/approve",
		map[string]string{"approved_by": "analyst-7"}, &approved)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", approved.Status)
	assert.Equal(t, "analyst-7", approved.ApprovedBy)

	var applied struct {
		Payment struct {
			InstallmentNumber int    `json:"installment_number"`
			PendingInterest   string `json:"pending_interest"`
		} `json:"payment"`
		Loan struct {
			Balance                  string `json:"balance"`
			CurrentInstallmentAmount string `json:"current_installment_amount"`
			RemainingInstallments    int    `json:"remaining_installments"`
		} `json:"loan"`
	}
	status = doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/payments", map[string]string{
		"payment_date":    "2024-02-15",
		"capital_amount":  "100000",
		"interest_amount": "20000",
	}, &applied)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, applied.Payment.InstallmentNumber)
	assert.Equal(t, "0", applied.Payment.PendingInterest)
	assert.Equal(t, "900000", applied.Loan.Balance)
	assert.Equal(t, "118000", applied.Loan.CurrentInstallmentAmount)
	assert.Equal(t, 9, applied.Loan.RemainingInstallments)

	var payments []json.RawMessage
	status = doJSON(t, ts, http.MethodGet, "/loans/"+loan.ID+"/payments", nil, &payments)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payments, 1)

	var fetched struct {
		Status  string `json:"status"`
		Overdue bool   `json:"overdue"`
	}
	status = doJSON(t, ts, http.MethodGet, "/loans/"+loan.ID, nil, &fetched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", fetched.Status)
	assert.False(t, fetched.Overdue, "next due is in the future at the test clock")

	var classification struct {
		IncomeCategory  string `json:"income_category"`
		PaymentBehavior string `json:"payment_behavior"`
		RiskLevel       string `json:"risk_level"`
	}
	status = doJSON(t, ts, http.MethodGet, "/clients/"+client.ID+"/classification", nil, &classification)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "C", classification.IncomeCategory)
	assert.Equal(t, "EXCELLENT", classification.PaymentBehavior)
	assert.Equal(t, "MEDIUM", classification.RiskLevel)
}

func TestAPI_FrequencyChange(t *testing.T) {
	ts := newTestServer(t)

	var client struct {
		ID string `json:"id"`
	}
	doJSON(t, ts, http.MethodPost, "/clients", map[string]interface{}{
		"name":           "Pedro Diaz",
		"document_id":    "CC-400500600",
		"monthly_income": "3000000",
	}, &client)

	var loan struct {
		ID string `json:"id"`
	}
	doJSON(t, ts, http.MethodPost, "/loans", map[string]interface{}{
		"client_id":         client.ID,
		"total_amount":      "1000000",
		"installments":      10,
		"interest_rate":     "2",
		"interest_type":     "DECREASING",
		"start_date":        "2024-01-15",
		"payment_frequency": "MONTHLY",
	}, &loan)
	doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/approve", map[string]string{"approved_by": "analyst-7"}, nil)

	var changed struct {
		Change struct {
			PreviousFrequency string `json:"previous_frequency"`
			NewFrequency      string `json:"new_frequency"`
		} `json:"change"`
		Loan struct {
			PaymentFrequency string `json:"payment_frequency"`
		} `json:"loan"`
	}
	status := doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/frequency", map[string]string{
		"new_frequency":  "WEEKLY",
		"effective_date": "2024-03-01",
		"reason":         "client cash flow",
		"changed_by":     "analyst-7",
	}, &changed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "MONTHLY", changed.Change.PreviousFrequency)
	assert.Equal(t, "WEEKLY", changed.Change.NewFrequency)
	assert.Equal(t, "WEEKLY", changed.Loan.PaymentFrequency)

	var changes []json.RawMessage
	status = doJSON(t, ts, http.MethodGet, "/loans/"+loan.ID+"/frequency-changes", nil, &changes)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, changes, 1)
}

func TestAPI_ErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	var client struct {
		ID string `json:"id"`
	}
	doJSON(t, ts, http.MethodPost, "/clients", map[string]interface{}{
		"name":           "Lucia Rios",
		"document_id":    "CC-700800900",
		"monthly_income": "2000000",
	}, &client)

	var errBody struct {
		Error string `json:"error"`
	}

	// Validation failure: zero installments.
	status := doJSON(t, ts, http.MethodPost, "/loans", map[string]interface{}{
		"client_id":         client.ID,
		"total_amount":      "1000000",
		"installments":      0,
		"interest_rate":     "2",
		"interest_type":     "DECREASING",
		"start_date":        "2024-01-15",
		"payment_frequency": "MONTHLY",
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", errBody.Error)

	// Unknown loan.
	status = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/loans/%s", "00000000-0000-0000-0000-000000000001"), nil, &errBody)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errBody.Error)

	// Invalid state: paying a PENDING loan.
	var loan struct {
		ID string `json:"id"`
	}
	doJSON(t, ts, http.MethodPost, "/loans", map[string]interface{}{
		"client_id":         client.ID,
		"total_amount":      "1000000",
		"installments":      10,
		"interest_rate":     "2",
		"interest_type":     "DECREASING",
		"start_date":        "2024-01-15",
		"payment_frequency": "MONTHLY",
	}, &loan)
	status = doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/payments", map[string]string{
		"payment_date":    "2024-02-15",
		"capital_amount":  "100000",
		"interest_amount": "20000",
	}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_state", errBody.Error)

	// Cancel then cancel again: terminal loans reject transitions.
	status = doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/cancel", map[string]string{"reason": "client request"}, nil)
	require.Equal(t, http.StatusOK, status)
	status = doJSON(t, ts, http.MethodPost, "/loans/"+loan.ID+"/cancel", map[string]string{"reason": "again"}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_state", errBody.Error)
}
