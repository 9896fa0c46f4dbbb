package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/ta"
	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Connect opens the terminal session with the configured credentials.
func (c *Client) Connect(ctx context.Context) error {
	req := connectRequest{Login: c.cfg.Login, Password: c.cfg.Password, Server: c.cfg.Server}
	if err := c.post(ctx, "/connect", req, nil); err != nil {
		return fmt.Errorf("bridge.Connect: %w", err)
	}
	return nil
}

// AccountInfo returns the account snapshot.
func (c *Client) AccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	var resp accountResponse
	if err := c.get(ctx, "/account", &resp); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("bridge.AccountInfo: %w", err)
	}
	return domain.AccountSnapshot{
		Balance:     resp.Balance,
		Equity:      resp.Equity,
		DailyPnL:    resp.DailyPnL,
		MaxDrawdown: resp.MaxDrawdown,
		TakenAt:     time.Now().UTC(),
	}, nil
}

// Quote returns bid/ask for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var resp quoteResponse
	if err := c.get(ctx, "/quote?symbol="+url.QueryEscape(symbol), &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("bridge.Quote: %s: %w", symbol, err)
	}
	return domain.Quote{Symbol: symbol, Bid: resp.Bid, Ask: resp.Ask}, nil
}

// Candles fetches the latest count candles in chronological order.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", timeframe)
	q.Set("count", fmt.Sprint(count))

	var resp candlesResponse
	if err := c.get(ctx, "/candles?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("bridge.Candles: %s %s: %w", symbol, timeframe, err)
	}
	out := make([]domain.Candle, len(resp.Candles))
	for i, dto := range resp.Candles {
		out[i] = dto.toDomain()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Indicators fetches candles and computes the snapshot locally.
func (c *Client) Indicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	candles, err := c.Candles(ctx, symbol, timeframe, c.cfg.CandleCount)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	snap, err := ta.Compute(symbol, c.cfg.Mode, timeframe, candles, c.cfg.Params)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("bridge.Indicators: %s: %w", symbol, err)
	}
	return snap, nil
}

// Instrument returns the volume constraints of symbol.
func (c *Client) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	var resp symbolResponse
	if err := c.get(ctx, "/symbols/"+url.PathEscape(symbol), &resp); err != nil {
		return domain.Instrument{}, fmt.Errorf("bridge.Instrument: %s: %w", symbol, err)
	}
	return domain.Instrument{
		Symbol:     symbol,
		MinVolume:  resp.MinVolume,
		MaxVolume:  resp.MaxVolume,
		VolumeStep: resp.VolumeStep,
	}, nil
}

// SubmitOrder sends a market order and returns the terminal's ticket.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := orderRequest{OrderRequest: req, Deviation: c.cfg.Deviation, Magic: c.cfg.Magic}
	var resp orderResponse
	if err := c.post(ctx, "/orders", body, &resp); err != nil {
		return "", fmt.Errorf("bridge.SubmitOrder: %s: %w", req.Symbol, err)
	}
	ticket := rawString(resp.Ticket)
	if ticket == "" {
		return "", fmt.Errorf("bridge.SubmitOrder: %s: %w", req.Symbol,
			&domain.RejectedError{Reason: "no ticket in response"})
	}
	return ticket, nil
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/positions", &resp); err != nil {
		return nil, fmt.Errorf("bridge.Positions: %w", err)
	}
	out := make([]domain.Position, len(resp.Positions))
	for i, p := range resp.Positions {
		out[i] = p.toDomain()
	}
	return out, nil
}

// ClosePosition closes a position by ticket.
func (c *Client) ClosePosition(ctx context.Context, ticket string) error {
	if err := c.do(ctx, http.MethodDelete, "/positions/"+url.PathEscape(ticket), nil, nil); err != nil {
		return fmt.Errorf("bridge.ClosePosition: %s: %w", ticket, err)
	}
	return nil
}
