package bridge_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/bridge"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Broker = (*bridge.Client)(nil)

func newClient(t *testing.T, mux *http.ServeMux) *bridge.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bridge.NewClient(bridge.Config{
		BaseURL:    srv.URL,
		Timeout:    200 * time.Millisecond,
		RatePerSec: 1000,
		Burst:      100,
		Login:      "1001",
		Password:   "secret",
		Server:     "Demo-Server",
		Mode:       domain.ModeStandard,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ConnectSendsCredentials(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	c := newClient(t, mux)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "1001", got["login"])
	assert.Equal(t, "secret", got["password"])
	assert.Equal(t, "Demo-Server", got["server"])
}

func TestClient_AccountAndQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]float64{"balance": 10000, "equity": 10050, "daily_pnl": -120})
	})
	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		writeJSON(w, http.StatusOK, map[string]float64{"bid": 1.0849, "ask": 1.0851})
	})
	c := newClient(t, mux)

	acct, err := c.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.Balance)
	assert.Equal(t, -120.0, acct.DailyPnL)
	assert.False(t, acct.TakenAt.IsZero())

	q, err := c.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0850, q.Mid(), 1e-9)
}

func TestClient_IndicatorsFromCandles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /candles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "H1", r.URL.Query().Get("timeframe"))
		t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
		var cs []map[string]any
		price := 1.0700
		// newest first, the client must reorder
		for i := 199; i >= 0; i-- {
			p := price + float64(i)*0.0004
			if i%2 == 0 {
				p += 0.0003
			}
			cs = append(cs, map[string]any{
				"time": t0 + int64(i)*3600, "open": p, "high": p + 0.0005, "low": p - 0.0005, "close": p,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"candles": cs})
	})
	c := newClient(t, mux)

	snap, err := c.Indicators(context.Background(), "EURUSD", "H1")
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Equal(t, domain.ModeStandard, snap.Mode)
	assert.Greater(t, snap.EMAFast, snap.EMASlow)
	assert.True(t, snap.Bands.Valid())
}

func TestClient_SubmitAndPositions(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		writeJSON(w, http.StatusOK, map[string]any{"ticket": 5551234})
	})
	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"positions": []map[string]any{{
			"ticket": 5551234, "client_id": "abc", "symbol": "EURUSD", "side": "buy",
			"volume": 0.5, "price_open": 1.0805, "price_current": 1.0810,
		}}})
	})
	mux.HandleFunc("DELETE /positions/{ticket}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5551234", r.PathValue("ticket"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newClient(t, mux)

	ticket, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientID: "abc", Symbol: "EURUSD", Direction: domain.DirectionBuy,
		Volume: 0.5, Price: 1.0805, Stop: 1.0775, Target: 1.0875,
	})
	require.NoError(t, err)
	assert.Equal(t, "5551234", ticket)
	assert.Equal(t, "BUY", sent["side"])
	assert.Equal(t, 1.0775, sent["sl"])
	assert.EqualValues(t, 20, sent["deviation"])

	positions, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "5551234", positions[0].Ticket)
	assert.Equal(t, domain.DirectionBuy, positions[0].Direction)

	require.NoError(t, c.ClosePosition(context.Background(), ticket))
}

func TestClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      any
		transient error
		rejected  bool
	}{
		{"bad gateway", http.StatusBadGateway, nil, domain.ErrDisconnected, false},
		{"unavailable", http.StatusServiceUnavailable, nil, domain.ErrDisconnected, false},
		{"gateway timeout", http.StatusGatewayTimeout, nil, domain.ErrTimeout, false},
		{"too many requests", http.StatusTooManyRequests, nil, domain.ErrTimeout, false},
		{"no money", http.StatusBadRequest, map[string]any{"code": 10019, "error": "not enough money"}, nil, true},
		{"plain 4xx", http.StatusUnprocessableEntity, "market closed", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
				if s, ok := tc.body.(string); ok {
					w.WriteHeader(tc.status)
					fmt.Fprint(w, s)
					return
				}
				writeJSON(w, tc.status, tc.body)
			})
			c := newClient(t, mux)

			_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD"})
			require.Error(t, err)
			if tc.transient != nil {
				assert.ErrorIs(t, err, tc.transient)
				assert.False(t, domain.IsRejected(err))
			}
			assert.Equal(t, tc.rejected, domain.IsRejected(err))
		})
	}
}

func TestClient_RejectedCarriesCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 10019, "error": "not enough money"})
	})
	c := newClient(t, mux)

	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{Symbol: "EURUSD"})
	var rej *domain.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "10019", rej.Code)
	assert.Equal(t, "not enough money", rej.Reason)
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("slow server is a timeout", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		})
		c := newClient(t, mux)
		_, err := c.AccountInfo(context.Background())
		assert.ErrorIs(t, err, domain.ErrTimeout)
	})

	t.Run("closed server is a disconnect", func(t *testing.T) {
		srv := httptest.NewServer(http.NewServeMux())
		url := srv.URL
		srv.Close()
		c := bridge.NewClient(bridge.Config{BaseURL: url, Timeout: time.Second})
		_, err := c.AccountInfo(context.Background())
		assert.ErrorIs(t, err, domain.ErrDisconnected)
	})
}
