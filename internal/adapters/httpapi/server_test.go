package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/smcbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "hook-secret"

var _ ports.ProposalSource = (*httpapi.ProposalQueue)(nil)

type fixedState struct{ st domain.RuntimeState }

func (f fixedState) Current() domain.RuntimeState { return f.st }

func newServer(t *testing.T, queue *httpapi.ProposalQueue, connected bool) http.Handler {
	t.Helper()
	st := domain.RuntimeState{
		Cycle: 12, Mode: domain.ModeStandard, Execution: domain.ExecPaper, Running: true,
		Symbols: map[string]domain.SymbolState{"EURUSD": {Note: "range"}},
	}
	srv := httpapi.NewServer(
		httpapi.Config{Addr: ":0", WebhookSecret: secret, ProductionMode: true},
		httpapi.Deps{
			State: fixedState{st: st},
			Queue: queue,
			Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("smcbot_cycles_total 3\n"))
			}),
			Connected: func() bool { return connected },
		},
	)
	return srv.Handler()
}

func postWebhook(h http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(httpapi.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AcceptsSignedProposal(t *testing.T) {
	q := httpapi.NewProposalQueue(0)
	h := newServer(t, q, true)

	body := []byte(`{"action":"order_send","symbol":"eurusd","direction":"buy","comment":"tv alert"}`)
	rec := postWebhook(h, body, httpapi.Sign(secret, body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionOrderSend, got[0].Action)
	assert.Equal(t, "EURUSD", got[0].Symbol)
	assert.Equal(t, domain.DirectionBuy, got[0].Direction)
	assert.False(t, got[0].ReceivedAt.IsZero())
	assert.Empty(t, q.Drain(), "drain empties the queue")
}

func TestWebhook_Rejections(t *testing.T) {
	valid := []byte(`{"action":"close_position","ticket":"5551234"}`)
	cases := []struct {
		name      string
		body      []byte
		signature string
		status    int
	}{
		{"missing signature", valid, "", http.StatusUnauthorized},
		{"wrong signature", valid, httpapi.Sign("other", valid), http.StatusUnauthorized},
		{"bad json", []byte(`{`), httpapi.Sign(secret, []byte(`{`)), http.StatusBadRequest},
		{"unknown action", []byte(`{"action":"nuke"}`), httpapi.Sign(secret, []byte(`{"action":"nuke"}`)), http.StatusBadRequest},
		{"close without ticket", []byte(`{"action":"close_position"}`), httpapi.Sign(secret, []byte(`{"action":"close_position"}`)), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := httpapi.NewProposalQueue(0)
			rec := postWebhook(newServer(t, q, true), tc.body, tc.signature)
			assert.Equal(t, tc.status, rec.Code)
			assert.Zero(t, q.Len())
		})
	}
}

func TestWebhook_SignatureWithPrefix(t *testing.T) {
	q := httpapi.NewProposalQueue(0)
	body := []byte(`{"action":"close_position","ticket":"77"}`)
	rec := postWebhook(newServer(t, q, true), body, "sha256="+httpapi.Sign(secret, body))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhook_QueueFull(t *testing.T) {
	q := httpapi.NewProposalQueue(1)
	h := newServer(t, q, true)
	body := []byte(`{"action":"close_position","ticket":"1"}`)

	assert.Equal(t, http.StatusAccepted, postWebhook(h, body, httpapi.Sign(secret, body)).Code)
	assert.Equal(t, http.StatusTooManyRequests, postWebhook(h, body, httpapi.Sign(secret, body)).Code)
}

func TestWebhook_DisabledWithoutSecret(t *testing.T) {
	srv := httpapi.NewServer(httpapi.Config{ProductionMode: true},
		httpapi.Deps{State: fixedState{}, Queue: httpapi.NewProposalQueue(0)})
	body := []byte(`{"action":"close_position","ticket":"1"}`)
	rec := postWebhook(srv.Handler(), body, httpapi.Sign("", body))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestState_Endpoints(t *testing.T) {
	h := newServer(t, httpapi.NewProposalQueue(0), true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.RuntimeState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, int64(12), st.Cycle)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state/EURUSD", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "range")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state/XAUUSD", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "smcbot_cycles_total")
}

func TestHealth_ReflectsConnection(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(t, httpapi.NewProposalQueue(0), true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	newServer(t, httpapi.NewProposalQueue(0), false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":false`)
}
