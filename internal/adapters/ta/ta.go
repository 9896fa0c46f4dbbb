// Package ta computes indicator snapshots from OHLC candles with go-talib.
package ta

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/markcheno/go-talib"
)

// Params are the indicator periods.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAFast    int
	EMASlow    int
	ADXPeriod  int
	ATRPeriod  int
	BBPeriod   int
	BBStdDev   float64
}

// DefaultParams: RSI 14, MACD 12/26/9, EMA 9/21, ADX 14, ATR 14, Bollinger 20/2.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		EMAFast:    9,
		EMASlow:    21,
		ADXPeriod:  14,
		ATRPeriod:  14,
		BBPeriod:   20,
		BBStdDev:   2,
	}
}

// MinCandles returns how many candles Compute needs for every indicator to
// have a value on the last bar.
func (p Params) MinCandles() int {
	n := p.MACDSlow + p.MACDSignal
	for _, v := range []int{2*p.ADXPeriod + 1, p.BBPeriod, p.RSIPeriod + 1, p.EMASlow, p.ATRPeriod + 1} {
		if v > n {
			n = v
		}
	}
	return n + 1
}

// Compute builds the snapshot for the last candle. Candles must be in
// chronological order.
func Compute(symbol string, mode domain.Mode, timeframe string, candles []domain.Candle, p Params) (domain.IndicatorSnapshot, error) {
	if need := p.MinCandles(); len(candles) < need {
		return domain.IndicatorSnapshot{}, &domain.ValidationError{
			Field:  "candles",
			Reason: fmt.Sprintf("%d candles, need %d", len(candles), need),
		}
	}

	n := len(candles)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
	}

	_, _, hist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	upper, mid, lower := talib.BBands(closes, p.BBPeriod, p.BBStdDev, p.BBStdDev, talib.SMA)

	snap := domain.IndicatorSnapshot{
		Symbol:    symbol,
		Mode:      mode,
		Timeframe: timeframe,
		RSI:       last(talib.Rsi(closes, p.RSIPeriod)),
		MACDHist:  last(hist),
		EMAFast:   last(talib.Ema(closes, p.EMAFast)),
		EMASlow:   last(talib.Ema(closes, p.EMASlow)),
		ADX:       last(talib.Adx(high, low, closes, p.ADXPeriod)),
		ATR:       orZero(last(talib.Atr(high, low, closes, p.ATRPeriod))),
		Bands: domain.Bands{
			Upper: orZero(last(upper)),
			Mid:   orZero(last(mid)),
			Lower: orZero(last(lower)),
		},
		Price:   closes[n-1],
		TakenAt: candles[n-1].Time,
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	return snap, nil
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// orZero maps a missing optional value to the zero "absent" marker.
func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
