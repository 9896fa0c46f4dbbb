// Package paper provides the simulated side of the engine: a synthetic
// market feed and an in-memory order book that fills locally.
package paper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/ta"
	"github.com/alejandrodnm/smcbot/internal/domain"
)

var basePrices = map[string]float64{
	"EURUSD": 1.0850,
	"GBPUSD": 1.2700,
	"AUDUSD": 0.6600,
	"USDCHF": 0.8900,
	"USDJPY": 150.00,
	"XAUUSD": 2300.0,
}

// Feed generates deterministic candles per symbol: the price is a function
// of (symbol, instant) only, so quotes, candles of every timeframe and two
// feeds built from the same clock all agree.
type Feed struct {
	mode   domain.Mode
	params ta.Params
	count  int
	now    func() time.Time
}

// NewFeed creates a synthetic feed. clock may be nil.
func NewFeed(mode domain.Mode, params ta.Params, clock func() time.Time) *Feed {
	if params.RSIPeriod == 0 {
		params = ta.DefaultParams()
	}
	if clock == nil {
		clock = time.Now
	}
	count := params.MinCandles() * 3
	return &Feed{mode: mode, params: params, count: count, now: clock}
}

// Connect is a no-op.
func (f *Feed) Connect(ctx context.Context) error { return nil }

// Quote returns the synthetic price at the current instant with a fixed spread.
func (f *Feed) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	p := f.price(symbol, f.now())
	half := p * 0.00005
	return domain.Quote{Symbol: symbol, Bid: p - half, Ask: p + half}, nil
}

// Candles returns the last count candles of symbol; the last one is still
// forming and closes at the current price.
func (f *Feed) Candles(symbol, timeframe string, count int) ([]domain.Candle, error) {
	tf, err := timeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	now := f.now().UTC()
	current := now.Truncate(tf)
	out := make([]domain.Candle, count)
	for k := 0; k < count; k++ {
		start := current.Add(-time.Duration(count-1-k) * tf)
		end := start.Add(tf)
		if end.After(now) {
			end = now
		}
		open := f.price(symbol, start)
		cl := f.price(symbol, end)
		wick := f.base(symbol) * 0.0002 * (1 + noise(symbol, start.Unix()))
		out[k] = domain.Candle{
			Time:  start,
			Open:  open,
			High:  math.Max(open, cl) + wick,
			Low:   math.Min(open, cl) - wick,
			Close: cl,
		}
	}
	return out, nil
}

// Indicators computes the snapshot from synthetic candles.
func (f *Feed) Indicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	candles, err := f.Candles(symbol, timeframe, f.count)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("paper.Indicators: %w", err)
	}
	return ta.Compute(symbol, f.mode, timeframe, candles, f.params)
}

// Instrument returns forex-like lot constraints.
func (f *Feed) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	return domain.Instrument{Symbol: symbol, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01}, nil
}

func (f *Feed) base(symbol string) float64 {
	if p, ok := basePrices[strings.ToUpper(symbol)]; ok {
		return p
	}
	return 100
}

// price superpone ondas de varias escalas (días, horas, minutos) sobre el precio base.
func (f *Feed) price(symbol string, at time.Time) float64 {
	phase := float64(seed(symbol) % 6000)
	x := float64(at.Unix())/60 + phase
	drift := 0.015*math.Sin(2*math.Pi*x/6000) +
		0.006*math.Sin(2*math.Pi*x/900) +
		0.002*math.Sin(2*math.Pi*x/120) +
		0.0006*math.Sin(2*math.Pi*x/20)
	return f.base(symbol) * (1 + drift)
}

func seed(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// noise is a deterministic value in [0,1) for candle i.
func noise(symbol string, i int64) float64 {
	return float64(seed(fmt.Sprintf("%s/%d", symbol, i))%1000) / 1000
}

func timeframeDuration(tf string) (time.Duration, error) {
	switch strings.ToUpper(tf) {
	case "M1":
		return time.Minute, nil
	case "M5":
		return 5 * time.Minute, nil
	case "M15":
		return 15 * time.Minute, nil
	case "M30":
		return 30 * time.Minute, nil
	case "H1":
		return time.Hour, nil
	case "H4":
		return 4 * time.Hour, nil
	case "D1":
		return 24 * time.Hour, nil
	}
	return 0, &domain.ValidationError{Field: "timeframe", Reason: fmt.Sprintf("unknown %q", tf)}
}
