package domain

import "math"

// Bias es la lectura direccional de un indicador.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// Structure es el sesgo de estructura de mercado.
type Structure string

const (
	StructureBullish Structure = "BULLISH"
	StructureBearish Structure = "BEARISH"
	StructureRange   Structure = "RANGE"
)

// Liquidity es la dirección de liquidez, espejo de la zona de precio.
type Liquidity string

const (
	LiquidityBuyside  Liquidity = "BUYSIDE"
	LiquiditySellside Liquidity = "SELLSIDE"
	LiquidityUnclear  Liquidity = "UNCLEAR"
)

// PricingZone indica si el precio está en premium, descuento o en medio.
type PricingZone string

const (
	ZonePremium  PricingZone = "PREMIUM"
	ZoneDiscount PricingZone = "DISCOUNT"
	ZoneNeutral  PricingZone = "NEUTRAL"
)

// TrendStrength es la clase del ADX.
type TrendStrength string

const (
	StrengthStrong     TrendStrength = "STRONG"
	StrengthDeveloping TrendStrength = "DEVELOPING"
	StrengthWeak       TrendStrength = "WEAK"
)

// Volatility es la clase del ATR. Solo informativa.
type Volatility string

const (
	VolatilityHigh   Volatility = "HIGH"
	VolatilityNormal Volatility = "NORMAL"
	VolatilityLow    Volatility = "LOW"
)

// Pesos del score. Con los tres sesgos alineados la base llega a scoreBase.
const (
	weightMA       = 3.0
	weightHist     = 2.5
	weightMomentum = 1.5
	weightTotal    = weightMA + weightHist + weightMomentum

	scoreBase            = 8.0
	boostStrong          = 2.0
	boostDeveloping      = 1.0
	contradictionPenalty = 1.0
	maxScore             = 10.0
)

// SignalVerdict es el resultado del clasificador para un snapshot.
type SignalVerdict struct {
	Symbol        string        `json:"symbol"`
	Mode          Mode          `json:"mode"`
	Momentum      Bias          `json:"momentum"`
	Histogram     Bias          `json:"histogram"`
	MovingAverage Bias          `json:"moving_average"`
	Strength      TrendStrength `json:"strength"`
	Volatility    Volatility    `json:"volatility"`
	Score         float64       `json:"score"`
	Structure     Structure     `json:"structure"`
	Liquidity     Liquidity     `json:"liquidity"`
	Zone          PricingZone   `json:"zone"`
}

// Direction traduce la estructura a una dirección operable. false si es rango.
func (v SignalVerdict) Direction() (Direction, bool) {
	switch v.Structure {
	case StructureBullish:
		return DirectionBuy, true
	case StructureBearish:
		return DirectionSell, true
	}
	return "", false
}

// Classify convierte un snapshot en un veredicto. Es determinista y sin I/O;
// el único fallo posible es un snapshot mal formado (ValidationError).
func Classify(s IndicatorSnapshot, th Thresholds) (SignalVerdict, error) {
	if err := s.Validate(); err != nil {
		return SignalVerdict{}, err
	}

	v := SignalVerdict{
		Symbol:        s.Symbol,
		Mode:          s.Mode,
		Momentum:      momentumBias(s.RSI, th),
		Histogram:     histogramBias(s.MACDHist, th.HistEpsilon),
		MovingAverage: averagesBias(s.EMAFast, s.EMASlow),
		Strength:      strengthClass(s.ADX, th),
		Volatility:    volatilityClass(s.ATR, th),
		Zone:          pricingZone(s, th.BandProximity),
	}
	v.Liquidity = liquidityFor(v.Zone)
	v.Structure = structureVote(v)
	v.Score = trendScore(v)
	return v, nil
}

func momentumBias(rsi float64, th Thresholds) Bias {
	switch {
	case rsi < th.RSIOversold:
		return BiasBullish
	case rsi > th.RSIOverbought:
		return BiasBearish
	}
	return BiasNeutral
}

func histogramBias(hist, eps float64) Bias {
	switch {
	case hist > eps:
		return BiasBullish
	case hist < -eps:
		return BiasBearish
	}
	return BiasNeutral
}

func averagesBias(fast, slow float64) Bias {
	tol := 1e-9 * math.Max(math.Abs(fast), math.Abs(slow))
	switch {
	case fast-slow > tol:
		return BiasBullish
	case slow-fast > tol:
		return BiasBearish
	}
	return BiasNeutral
}

func strengthClass(adx float64, th Thresholds) TrendStrength {
	switch {
	case adx > th.ADXStrong:
		return StrengthStrong
	case adx >= th.ADXDeveloping:
		return StrengthDeveloping
	}
	return StrengthWeak
}

func volatilityClass(atr float64, th Thresholds) Volatility {
	switch {
	case atr > th.ATRHigh:
		return VolatilityHigh
	case atr < th.ATRLow:
		return VolatilityLow
	}
	return VolatilityNormal
}

// pricingZone mide la distancia a los extremos como fracción del ancho de bandas.
// Sin precio o sin bandas la zona es neutral.
func pricingZone(s IndicatorSnapshot, proximity float64) PricingZone {
	if s.Price <= 0 || !s.Bands.Valid() {
		return ZoneNeutral
	}
	edge := s.Bands.Width() * proximity
	switch {
	case s.Price <= s.Bands.Lower+edge:
		return ZoneDiscount
	case s.Price >= s.Bands.Upper-edge:
		return ZonePremium
	}
	return ZoneNeutral
}

func liquidityFor(z PricingZone) Liquidity {
	switch z {
	case ZoneDiscount:
		return LiquidityBuyside
	case ZonePremium:
		return LiquiditySellside
	}
	return LiquidityUnclear
}

// structureVote: mayoría (2 de 3) entre MA, histograma y momentum.
// ADX débil fuerza rango.
func structureVote(v SignalVerdict) Structure {
	if v.Strength == StrengthWeak {
		return StructureRange
	}
	bull, bear := 0, 0
	for _, b := range []Bias{v.MovingAverage, v.Histogram, v.Momentum} {
		switch b {
		case BiasBullish:
			bull++
		case BiasBearish:
			bear++
		}
	}
	switch {
	case bull >= 2:
		return StructureBullish
	case bear >= 2:
		return StructureBearish
	}
	return StructureRange
}

// trendScore escala el peso neto alineado a [0, scoreBase] y aplica el boost
// de ADX y la penalización si la zona contradice la dirección.
func trendScore(v SignalVerdict) float64 {
	var bullW, bearW float64
	add := func(b Bias, w float64) {
		switch b {
		case BiasBullish:
			bullW += w
		case BiasBearish:
			bearW += w
		}
	}
	add(v.MovingAverage, weightMA)
	add(v.Histogram, weightHist)
	add(v.Momentum, weightMomentum)

	net := math.Abs(bullW - bearW)
	if net == 0 {
		return 0
	}
	score := net / weightTotal * scoreBase

	switch v.Strength {
	case StrengthStrong:
		score += boostStrong
	case StrengthDeveloping:
		score += boostDeveloping
	}

	bullish := bullW > bearW
	if (bullish && v.Zone == ZonePremium) || (!bullish && v.Zone == ZoneDiscount) {
		score -= contradictionPenalty
	}

	score = math.Max(0, math.Min(maxScore, score))
	return math.Round(score*10) / 10
}
