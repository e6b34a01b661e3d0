package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
	"partnerledger/observability/logging"
	"partnerledger/services/ledgerd/auth"
)

type withdrawalQuoteRequest struct {
	Amount    int64  `json:"amount"`
	TaxStatus string `json:"taxStatus"`
}

// QuoteWithdrawal returns the tax breakdown for an amount.
func (s *Server) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalQuoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	quote, err := s.withdrawals.Quote(req.Amount, rates.ParseTaxStatus(req.TaxStatus))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newQuoteView(quote))
}

type paymentRequest struct {
	Kind    string          `json:"kind"`
	Details json.RawMessage `json:"details"`
}

type createWithdrawalRequest struct {
	UserID    string          `json:"userId"`
	Amount    int64           `json:"amount"`
	TaxStatus string          `json:"taxStatus"`
	Payment   *paymentRequest `json:"payment"`
}

// CreateWithdrawal opens a PENDING withdrawal holding the amount.
func (s *Server) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawalRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Payment == nil || len(req.Payment.Details) == 0 {
		s.writeError(w, r, withdrawal.ErrPaymentRequired)
		return
	}
	details, err := withdrawal.DecodePaymentDetails(withdrawal.PaymentKind(normalizeStatus(req.Payment.Kind)), req.Payment.Details)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.withdrawals.Create(r.Context(), withdrawal.CreateRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		TaxStatus:      rates.ParseTaxStatus(req.TaxStatus),
		PaymentDetails: details,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("withdrawal requested",
		slog.String("withdrawalId", created.ID),
		slog.String("userId", created.UserID),
		slog.Int64("amount", created.Amount),
		logging.PaymentField("payee", paymentIdentifier(details)))
	s.writeJSON(w, http.StatusCreated, newWithdrawalView(created))
}

// GetWithdrawal returns a withdrawal request.
func (s *Server) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, err := s.withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWithdrawalView(req))
}

// ListWithdrawals lists requests filtered by ?userId= and ?status=.
func (s *Server) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := withdrawal.Filter{UserID: r.URL.Query().Get("userId"), Limit: limit}
	for _, raw := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, withdrawal.Status(normalizeStatus(raw)))
	}
	rows, err := s.withdrawals.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]withdrawalView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newWithdrawalView(row))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

// ApproveWithdrawal moves a PENDING request to APPROVED.
func (s *Server) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, err := s.withdrawals.Approve(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWithdrawalView(req))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectWithdrawal rejects a PENDING or APPROVED request; reason is required.
func (s *Server) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body rejectRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := s.withdrawals.Reject(r.Context(), chi.URLParam(r, "id"), actorOf(r), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWithdrawalView(req))
}

func paymentIdentifier(details withdrawal.PaymentDetails) string {
	switch d := details.(type) {
	case withdrawal.Card:
		return d.Number
	case withdrawal.BankAccount:
		return d.AccountNumber
	}
	return ""
}

func actorOf(r *http.Request) string { return auth.Actor(r.Context()) }

func normalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
