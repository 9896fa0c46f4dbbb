// Package bridge talks to the brokerage terminal through its JSON-over-HTTP
// bridge process and implements ports.Broker.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/ta"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultRatePerSec  = 20
	defaultBurst       = 5
	defaultCandleCount = 200
	defaultDeviation   = 20
	maxErrorBody       = 4096
)

// Config holds the bridge connection settings. Credentials come from env.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	Login       string
	Password    string
	Server      string
	Mode        domain.Mode // stamped on snapshots
	CandleCount int
	Deviation   int // max price deviation in points accepted by the terminal
	Magic       int // tag the terminal attaches to our positions
	Params      ta.Params
}

// Client es el HTTP client del bridge con rate limiting. No reintenta:
// los reintentos son de la política de la sesión.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = defaultCandleCount
	}
	if cfg.Deviation <= 0 {
		cfg.Deviation = defaultDeviation
	}
	if cfg.Params.RSIPeriod == 0 {
		cfg.Params = ta.DefaultParams()
	}
	if need := cfg.Params.MinCandles(); cfg.CandleCount < need {
		cfg.CandleCount = need
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// get hace un GET con rate limiting.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post hace un POST JSON con rate limiting.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classifyTransport(fmt.Errorf("rate limiter: %w", err))
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// classifyTransport maps a failed round trip onto the transient taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrDisconnected, err)
}

// classifyStatus maps a non-2xx response: gateway and 5xx errors are
// transient, 4xx carry the terminal's semantic rejection.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrDisconnected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return &domain.RejectedError{Code: fmt.Sprint(resp.StatusCode), Reason: strings.TrimSpace(string(body))}
	}
	return &domain.RejectedError{Code: rawString(e.Code), Reason: e.Error}
}
