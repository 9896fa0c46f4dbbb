package domain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eurusdSnapshot es el caso de referencia: MA y MACD alcistas, RSI neutral, ADX fuerte.
func eurusdSnapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Symbol:   "EURUSD",
		Mode:     ModeStandard,
		RSI:      35,
		MACDHist: 0.00008,
		EMAFast:  1.0855,
		EMASlow:  1.0820,
		ADX:      30,
		ATR:      0.0012,
		Bands:    Bands{Upper: 1.0875, Mid: 1.0837, Lower: 1.0799},
		Price:    1.0805,
	}
}

func TestClassify_EURUSDScenario(t *testing.T) {
	v, err := Classify(eurusdSnapshot(), DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)

	assert.Equal(t, BiasNeutral, v.Momentum)
	assert.Equal(t, BiasBullish, v.Histogram)
	assert.Equal(t, BiasBullish, v.MovingAverage)
	assert.Equal(t, StrengthStrong, v.Strength)
	assert.Equal(t, StructureBullish, v.Structure)
	assert.Equal(t, ZoneDiscount, v.Zone)
	assert.Equal(t, LiquidityBuyside, v.Liquidity)
	assert.GreaterOrEqual(t, v.Score, 7.0)
}

func TestClassify_MissingRequiredField(t *testing.T) {
	s := eurusdSnapshot()
	s.MACDHist = math.NaN()

	_, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestClassify_RSIOutOfRange(t *testing.T) {
	s := eurusdSnapshot()
	s.RSI = 140

	_, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	assert.True(t, IsValidation(err))
}

// --- Momentum por modo ---

func TestClassify_ScalpNarrowsMomentum(t *testing.T) {
	s := eurusdSnapshot()
	s.RSI = 27

	std, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)
	scalp, err := Classify(s, DefaultProfile(ModeScalp).Thresholds)
	require.NoError(t, err)

	assert.Equal(t, BiasBullish, std.Momentum)
	assert.Equal(t, BiasNeutral, scalp.Momentum)
}

func TestClassify_OverboughtIsBearish(t *testing.T) {
	s := eurusdSnapshot()
	s.RSI = 71
	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)
	assert.Equal(t, BiasBearish, v.Momentum)
}

func TestClassify_FlatInputsAreNeutral(t *testing.T) {
	s := eurusdSnapshot()
	s.MACDHist = 0
	s.EMAFast = s.EMASlow
	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)

	assert.Equal(t, BiasNeutral, v.Histogram)
	assert.Equal(t, BiasNeutral, v.MovingAverage)
	assert.Equal(t, StructureRange, v.Structure)
	assert.Equal(t, 0.0, v.Score)
}

// --- Zonas y liquidez ---

func TestClassify_PremiumZone(t *testing.T) {
	s := eurusdSnapshot()
	s.Price = 1.0870
	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)

	assert.Equal(t, ZonePremium, v.Zone)
	assert.Equal(t, LiquiditySellside, v.Liquidity)
}

func TestClassify_NoPriceIsNeutralZone(t *testing.T) {
	s := eurusdSnapshot()
	s.Price = 0
	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)

	assert.Equal(t, ZoneNeutral, v.Zone)
	assert.Equal(t, LiquidityUnclear, v.Liquidity)
}

func TestClassify_VolatilityIsInformational(t *testing.T) {
	th := DefaultProfile(ModeStandard).Thresholds
	low := eurusdSnapshot()
	low.ATR = 0.001
	high := eurusdSnapshot()
	high.ATR = 0.009

	vl, err := Classify(low, th)
	require.NoError(t, err)
	vh, err := Classify(high, th)
	require.NoError(t, err)

	assert.Equal(t, VolatilityLow, vl.Volatility)
	assert.Equal(t, VolatilityHigh, vh.Volatility)
	assert.Equal(t, vl.Structure, vh.Structure)
	assert.Equal(t, vl.Score, vh.Score)
}

// --- Score ---

func TestTrendScore_MoreAlignedIsHigher(t *testing.T) {
	th := DefaultProfile(ModeStandard).Thresholds

	one := eurusdSnapshot()
	one.MACDHist = 0
	one.Price = 0

	two := eurusdSnapshot()
	two.Price = 0

	three := eurusdSnapshot()
	three.RSI = 25
	three.Price = 0

	v1, _ := Classify(one, th)
	v2, _ := Classify(two, th)
	v3, _ := Classify(three, th)

	assert.Less(t, v1.Score, v2.Score)
	assert.Less(t, v2.Score, v3.Score)
}

func TestTrendScore_ContradictionReduces(t *testing.T) {
	th := DefaultProfile(ModeStandard).Thresholds
	discount := eurusdSnapshot()
	premium := eurusdSnapshot()
	premium.Price = 1.0874

	vd, _ := Classify(discount, th)
	vp, _ := Classify(premium, th)

	assert.Less(t, vp.Score, vd.Score)
}

func TestTrendScore_BearishMirror(t *testing.T) {
	s := eurusdSnapshot()
	s.RSI = 80
	s.MACDHist = -0.0002
	s.EMAFast, s.EMASlow = s.EMASlow, s.EMAFast
	s.Price = 1.0872

	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)
	assert.Equal(t, StructureBearish, v.Structure)
	assert.Equal(t, 10.0, v.Score)
}

// --- Propiedades ---

func TestClassify_AllBullishIsBullishAboveSix(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	th := DefaultProfile(ModeStandard).Thresholds

	for i := 0; i < 500; i++ {
		slow := 1 + rng.Float64()
		lower := slow * 0.99
		s := IndicatorSnapshot{
			Symbol:   "X",
			RSI:      rng.Float64() * 29.99,
			MACDHist: 1e-6 + rng.Float64()*0.01,
			EMASlow:  slow,
			EMAFast:  slow * (1.0001 + rng.Float64()*0.01),
			ADX:      20 + rng.Float64()*50,
			ATR:      rng.Float64() * 0.01,
			Bands:    Bands{Lower: lower, Mid: slow, Upper: slow * 1.01},
			Price:    lower + rng.Float64()*slow*0.02,
		}
		v, err := Classify(s, th)
		require.NoError(t, err)
		assert.Equal(t, StructureBullish, v.Structure, "case %d", i)
		assert.GreaterOrEqual(t, v.Score, 6.0, "case %d", i)
	}
}

func TestClassify_WeakADXIsAlwaysRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	th := DefaultProfile(ModeStandard).Thresholds

	for i := 0; i < 500; i++ {
		s := IndicatorSnapshot{
			Symbol:   "X",
			RSI:      rng.Float64() * 100,
			MACDHist: rng.NormFloat64() * 0.01,
			EMAFast:  1 + rng.Float64(),
			EMASlow:  1 + rng.Float64(),
			ADX:      rng.Float64() * 19.99,
			Price:    rng.Float64() * 2,
		}
		v, err := Classify(s, th)
		require.NoError(t, err)
		assert.Equal(t, StructureRange, v.Structure, "case %d", i)
	}
}
