package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"partnerledger/native/withdrawal"
)

func TestPayoutPostsMaskedRequest(t *testing.T) {
	var got map[string]any
	var path, key, apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("Idempotency-Key")
		apiKey = r.Header.Get("x-api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", "rail-key", "RUB", time.Second)
	require.NoError(t, err)
	err = client.Payout(context.Background(), &withdrawal.Request{
		ID:        "w-1",
		UserID:    "p1",
		NetAmount: 960,
		TaxAmount: 40,
		PayoutRef: "payout:w-1",
		Payment:   withdrawal.Card{Number: "4111111111111111", Holder: "Anna Petrova"},
	})
	require.NoError(t, err)
	require.Equal(t, "/payouts", path)
	require.Equal(t, "payout:w-1", key)
	require.Equal(t, "rail-key", apiKey)
	require.Equal(t, "w-1", got["withdrawal_id"])
	require.EqualValues(t, 960, got["net_amount"])
	require.Equal(t, "RUB", got["currency"])
	require.Equal(t, "CARD", got["payment_kind"])
	require.Equal(t, "************1111", got["payment"].(map[string]any)["number"])
}

func TestPayoutTreatsConflictAsPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", "RUB", 0)
	require.NoError(t, err)
	require.NoError(t, client.Payout(context.Background(), &withdrawal.Request{ID: "w-1", PayoutRef: "payout:w-1"}))
}

func TestPayoutSurfacesRailErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", "RUB", 0)
	require.NoError(t, err)
	require.Error(t, client.Payout(context.Background(), &withdrawal.Request{ID: "w-1", PayoutRef: "payout:w-1"}))
	require.Error(t, client.Payout(context.Background(), &withdrawal.Request{ID: "w-2"}))
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient("  ", "", "RUB", 0)
	require.Error(t, err)
}
