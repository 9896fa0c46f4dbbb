package domain

import (
	"math"
	"time"
)

// Bands son los tres niveles de la banda de volatilidad (Bollinger).
type Bands struct {
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Lower float64 `json:"lower"`
}

// Valid devuelve true si las tres bandas existen y están ordenadas.
func (b Bands) Valid() bool {
	return b.Lower > 0 && b.Mid > b.Lower && b.Upper > b.Mid
}

// Width devuelve upper - lower.
func (b Bands) Width() float64 {
	return b.Upper - b.Lower
}

// IndicatorSnapshot es la lectura de indicadores de un símbolo en un ciclo.
// Es un valor inmutable. En los campos requeridos NaN significa "ausente";
// en ATR, Bands y Price el cero significa "ausente".
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Mode      Mode      `json:"mode"`
	Timeframe string    `json:"timeframe"`
	RSI       float64   `json:"rsi"`
	MACDHist  float64   `json:"macd_hist"`
	EMAFast   float64   `json:"ema_fast"`
	EMASlow   float64   `json:"ema_slow"`
	ADX       float64   `json:"adx"`
	ATR       float64   `json:"atr"`
	Bands     Bands     `json:"bands"`
	Price     float64   `json:"price,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
}

// Validate comprueba los campos requeridos por el clasificador.
func (s IndicatorSnapshot) Validate() error {
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "empty"}
	}
	required := []struct {
		name string
		v    float64
	}{
		{"rsi", s.RSI},
		{"macd_hist", s.MACDHist},
		{"ema_fast", s.EMAFast},
		{"ema_slow", s.EMASlow},
		{"adx", s.ADX},
	}
	for _, f := range required {
		if math.IsNaN(f.v) {
			return &ValidationError{Field: f.name, Reason: "missing"}
		}
		if math.IsInf(f.v, 0) {
			return &ValidationError{Field: f.name, Reason: "not finite"}
		}
	}
	if s.RSI < 0 || s.RSI > 100 {
		return &ValidationError{Field: "rsi", Reason: "out of range [0,100]"}
	}
	if s.ADX < 0 {
		return &ValidationError{Field: "adx", Reason: "negative"}
	}
	optional := []struct {
		name string
		v    float64
	}{
		{"atr", s.ATR},
		{"band_upper", s.Bands.Upper},
		{"band_mid", s.Bands.Mid},
		{"band_lower", s.Bands.Lower},
		{"price", s.Price},
	}
	for _, f := range optional {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return &ValidationError{Field: f.name, Reason: "malformed"}
		}
	}
	return nil
}

// Candle es una vela OHLCV.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote es el precio actual de un símbolo.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Mid devuelve el precio medio; si falta un lado usa el otro.
func (q Quote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Bid > 0:
		return q.Bid
	default:
		return q.Ask
	}
}

// Instrument son las restricciones de volumen del símbolo en el broker.
type Instrument struct {
	Symbol     string  `json:"symbol"`
	MinVolume  float64 `json:"min_volume"`
	MaxVolume  float64 `json:"max_volume"` // 0 = sin máximo
	VolumeStep float64 `json:"volume_step"`
}
