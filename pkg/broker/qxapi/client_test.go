package qxapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qxbot/pkg/broker"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email != "bot@example.com" || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(apiErrorPayload{Error: "bad credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(loginResponse{Token: "tok-123"})
	})

	requireAuth := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/api/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		_ = json.NewEncoder(w).Encode(balanceResponse{Balance: 1234.56, Currency: "USD"})
	})

	mux.HandleFunc("/api/v1/instruments", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		_ = json.NewEncoder(w).Encode([]instrumentPayload{
			{Symbol: "EURUSD_otc", Name: "EUR/USD OTC", Payout: 85, IsOpen: true},
			{Symbol: "GBPUSD", Name: "GBP/USD", Payout: 80, IsOpen: false},
		})
	})

	mux.HandleFunc("/api/v1/candles", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		assert.Equal(t, "EURUSD_otc", r.URL.Query().Get("asset"))
		assert.Equal(t, "60", r.URL.Query().Get("period"))
		_ = json.NewEncoder(w).Encode([]candlePayload{
			{TsMs: 1700000000000, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
			{TsMs: 1700000060000, Open: 1.15, High: 1.18, Low: 1.12, Close: 1.16},
		})
	})

	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		var req orderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Amount > 1000 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(apiErrorPayload{Error: "amount too large"})
			return
		}
		balance := 900.0
		_ = json.NewEncoder(w).Encode(orderResponsePayload{
			ID:            "ord-1",
			OpenTsMs:      1700000000000,
			PercentProfit: 85,
			PercentLoss:   100,
			Balance:       &balance,
		})
	})

	mux.HandleFunc("/api/v1/orders/", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r) {
			return
		}
		switch r.URL.Path {
		case "/api/v1/orders/ord-1":
			_ = json.NewEncoder(w).Encode(outcomePayload{ID: "ord-1", Status: "win", Profit: 85})
		case "/api/v1/orders/ord-weird":
			_ = json.NewEncoder(w).Encode(outcomePayload{ID: "ord-weird", Status: "limbo"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	return httptest.NewServer(mux)
}

func newConnectedClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(
		WithBaseURL(srv.URL),
		WithCredentials("bot@example.com", "secret"),
		WithRetryPolicy(1, time.Millisecond),
	)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestConnectAndBalance(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)

	require.NoError(t, c.Ping(context.Background()))

	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, balance, 1e-9)
}

func TestConnectWithoutCredentialsFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(1, time.Millisecond))
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, broker.KindRejected, broker.KindOf(err))
}

func TestConnectBadCredentialsExhaustsRetries(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithCredentials("bot@example.com", "wrong"),
		WithRetryPolicy(2, time.Millisecond),
	)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, broker.IsConnectivity(err))
}

func TestListInstrumentsNormalisesOTC(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)

	instruments, err := c.ListInstruments(context.Background())
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	assert.Equal(t, "EURUSD_otc", instruments[0].ID)
	assert.True(t, instruments[0].IsOTC)
	assert.True(t, instruments[0].IsOpen)
	assert.InDelta(t, 85, instruments[0].PayoutPercent, 1e-9)

	assert.False(t, instruments[1].IsOTC)
	assert.False(t, instruments[1].IsOpen)
}

func TestGetCandles(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)

	candles, err := c.GetCandles(context.Background(), "EURUSD_otc", time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.InDelta(t, 1.15, candles[0].Close, 1e-9)
	assert.Equal(t, time.UnixMilli(1700000000000), candles[0].OpenTime)
}

func TestSubmitOrderCarriesPostTradeBalance(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)

	receipt, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Instrument: "EURUSD_otc",
		Direction:  broker.DirectionCall,
		Amount:     100,
		Duration:   2 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", receipt.OrderID)
	assert.True(t, receipt.HasPostTradeBalance)
	assert.InDelta(t, 900, receipt.PostTradeBalance, 1e-9)
	assert.InDelta(t, 85, receipt.PercentProfit, 1e-9)
}

func TestSubmitOrderRejection(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)

	_, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Instrument: "EURUSD_otc",
		Direction:  broker.DirectionCall,
		Amount:     5000,
		Duration:   time.Minute,
	})
	require.Error(t, err)
	assert.Equal(t, broker.KindRejected, broker.KindOf(err))
	assert.Contains(t, err.Error(), "amount too large")
}

func TestQueryOutcomeMapping(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newConnectedClient(t, srv)
	ctx := context.Background()

	out, err := c.QueryOutcome(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, broker.OutcomeWin, out.Status)
	assert.InDelta(t, 85, out.ProfitAmount, 1e-9)

	_, err = c.QueryOutcome(ctx, "ord-weird")
	require.Error(t, err)
	assert.Equal(t, broker.KindMalformed, broker.KindOf(err))

	_, err = c.QueryOutcome(ctx, "ord-missing")
	require.Error(t, err)
	assert.True(t, broker.IsUnavailable(err))
}
