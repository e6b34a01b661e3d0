package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"partnerledger/native/withdrawal"
)

// Request is the body posted to the payout rail. Payment details are the
// masked copy kept on the withdrawal; the rail resolves the full payee from its
// own records keyed by the withdrawal id.
type Request struct {
	Reference    string                    `json:"reference"`
	WithdrawalID string                    `json:"withdrawal_id"`
	UserID       string                    `json:"user_id"`
	NetAmount    int64                     `json:"net_amount"`
	TaxAmount    int64                     `json:"tax_amount"`
	Currency     string                    `json:"currency"`
	PaymentKind  string                    `json:"payment_kind,omitempty"`
	Payment      withdrawal.PaymentDetails `json:"payment,omitempty"`
}

// Client sends PROCESSING withdrawals to an HTTP payout rail.
type Client struct {
	apiKey   string
	baseURL  string
	currency string
	http     *http.Client
}

// NewClient constructs a payout rail client with sane defaults.
func NewClient(baseURL, apiKey, currency string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("payout: endpoint required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  baseURL,
		currency: currency,
		http:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

// Payout posts the withdrawal to the rail. The payout reference doubles as the
// Idempotency-Key, and a 409 from the rail means the reference was already
// paid, so retries after a failed completion are safe.
func (c *Client) Payout(ctx context.Context, req *withdrawal.Request) error {
	if c == nil {
		return fmt.Errorf("payout client not configured")
	}
	if req == nil || req.PayoutRef == "" {
		return fmt.Errorf("payout: reference required")
	}
	body := Request{
		Reference:    req.PayoutRef,
		WithdrawalID: req.ID,
		UserID:       req.UserID,
		NetAmount:    req.NetAmount,
		TaxAmount:    req.TaxAmount,
		Currency:     c.currency,
	}
	if req.Payment != nil {
		body.PaymentKind = string(req.Payment.Kind())
		body.Payment = req.Payment.Masked()
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.PayoutRef)
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode >= 300:
		return fmt.Errorf("payout %s failed: status=%d", req.PayoutRef, resp.StatusCode)
	}
	return nil
}
