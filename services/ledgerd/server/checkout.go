package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/rates"
)

type checkoutQuoteRequest struct {
	UserID     string `json:"userId"`
	OrderTotal int64  `json:"orderTotal"`
	Requested  int64  `json:"requested"`
}

// QuoteCheckout reports how much bonus may pay for an order and, when a
// requested amount is given, the clamped amount.
func (s *Server) QuoteCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutQuoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OrderTotal < 0 {
		s.writeError(w, r, errBadRequest("orderTotal must not be negative"))
		return
	}
	maxApplicable, err := s.ledger.MaxApplicable(r.Context(), req.UserID, req.OrderTotal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applicable := maxApplicable
	if req.Requested > 0 && req.Requested < applicable {
		applicable = req.Requested
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"userId":        req.UserID,
		"orderTotal":    req.OrderTotal,
		"maxApplicable": maxApplicable,
		"applicable":    applicable,
	})
}

type checkoutSpendRequest struct {
	UserID     string `json:"userId"`
	OrderID    string `json:"orderId"`
	OrderTotal int64  `json:"orderTotal"`
	Amount     int64  `json:"amount"`
}

// SpendCheckout redeems bonus against an order.
func (s *Server) SpendCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutSpendRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		s.writeError(w, r, errBadRequest("orderId required"))
		return
	}
	entry, err := s.ledger.Redeem(r.Context(), req.UserID, req.OrderTotal, req.Amount, req.OrderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newEntryView(entry))
}

type transactionRequest struct {
	ID         string     `json:"id"`
	PayerID    string     `json:"payerId"`
	Amount     int64      `json:"amount"`
	OccurredAt *time.Time `json:"occurredAt"`
}

// RecordTransaction registers a settled purchase: it writes the upline
// commissions, grants the first-purchase activity bonus once and credits the
// referral bonus when the payer was referred.
func (s *Server) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx := commission.SourceTransaction{ID: req.ID, PayerID: req.PayerID, Amount: req.Amount}
	if req.OccurredAt != nil {
		tx.OccurredAt = req.OccurredAt.UTC()
	} else {
		tx.OccurredAt = s.now().UTC()
	}
	ctx := r.Context()
	commissions, err := s.commissions.Calculate(ctx, tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	firstPurchase, err := s.grantFirstPurchase(ctx, tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	referral, err := s.grantReferralBonus(ctx, tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"transactionId": tx.ID,
		"commissions":   newCommissionViews(commissions),
		"firstPurchase": newEntryView(firstPurchase),
		"referralBonus": newEntryView(referral),
	})
}

func (s *Server) grantFirstPurchase(ctx context.Context, tx commission.SourceTransaction) (*bonus.Transaction, error) {
	if _, err := s.tables.Activity(rates.ActivityFirstPurchase); err != nil {
		// Not configured: nothing to grant.
		return nil, nil
	}
	entry, err := s.ledger.GrantActivity(ctx, tx.PayerID, rates.ActivityFirstPurchase, tx.ID)
	if errors.Is(err, ledgererrors.ErrAlreadyGranted) {
		return nil, nil
	}
	return entry, err
}

func (s *Server) grantReferralBonus(ctx context.Context, tx commission.SourceTransaction) (*bonus.Transaction, error) {
	upline, err := s.partners.Graph().Upline(ctx, tx.PayerID, 1)
	if err != nil {
		return nil, err
	}
	if len(upline) == 0 {
		return nil, nil
	}
	entry, err := s.ledger.GrantReferralBonus(ctx, tx.PayerID, tx.Amount, tx.ID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		s.logger.Debug("referral bonus credited",
			slog.String("userId", tx.PayerID),
			slog.Int64("amount", entry.Amount))
	}
	return entry, nil
}
