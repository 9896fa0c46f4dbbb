package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanZones_EURUSDScenario(t *testing.T) {
	s := eurusdSnapshot()
	v, err := Classify(s, DefaultProfile(ModeStandard).Thresholds)
	require.NoError(t, err)

	z, ok := PlanZones(v, s, 2)
	require.True(t, ok)

	assert.Equal(t, DirectionBuy, z.Direction)
	assert.InDelta(t, 1.0799, z.EntryLow, 1e-9)
	assert.InDelta(t, 1.0837, z.EntryHigh, 1e-9)
	assert.Less(t, z.Stop, 1.0799)
	assert.InDelta(t, 1.0799-2*0.0012, z.Stop, 1e-9)
	assert.InDelta(t, 1.0875, z.Target, 1e-9)
	assert.True(t, z.Contains(s.Price))
}

func TestPlanZones_BearishMirror(t *testing.T) {
	s := eurusdSnapshot()
	z, ok := PlanZonesFor(DirectionSell, s, 1.5)
	require.True(t, ok)

	assert.InDelta(t, 1.0837, z.EntryLow, 1e-9)
	assert.InDelta(t, 1.0875, z.EntryHigh, 1e-9)
	assert.InDelta(t, 1.0875+1.5*0.0012, z.Stop, 1e-9)
	assert.InDelta(t, 1.0799, z.Target, 1e-9)
}

func TestPlanZones_RangeHasNoPlan(t *testing.T) {
	v := SignalVerdict{Structure: StructureRange}
	z, ok := PlanZones(v, eurusdSnapshot(), 2)
	assert.False(t, ok)
	assert.Equal(t, NoPlanRange, z.Reason)
}

func TestPlanZones_MissingInputsFailSoftly(t *testing.T) {
	v := SignalVerdict{Structure: StructureBullish}

	noBands := eurusdSnapshot()
	noBands.Bands = Bands{}
	z, ok := PlanZones(v, noBands, 2)
	assert.False(t, ok)
	assert.Equal(t, NoPlanBandsMissing, z.Reason)

	noATR := eurusdSnapshot()
	noATR.ATR = 0
	z, ok = PlanZones(v, noATR, 2)
	assert.False(t, ok)
	assert.Equal(t, NoPlanATRMissing, z.Reason)
}

func TestPlanZones_DefaultMultiplier(t *testing.T) {
	z, ok := PlanZonesFor(DirectionBuy, eurusdSnapshot(), 0)
	require.True(t, ok)
	assert.InDelta(t, 1.0799-DefaultStopATRMultiplier*0.0012, z.Stop, 1e-9)
}

func TestZones_EntryFor(t *testing.T) {
	z := Zones{EntryLow: 1.0, EntryHigh: 2.0}
	assert.Equal(t, 1.5, z.EntryFor(0))
	assert.Equal(t, 1.2, z.EntryFor(1.2))
	assert.Equal(t, 2.0, z.EntryFor(3))
	assert.Equal(t, 1.0, z.EntryFor(0.5))
}

// Stop siempre del lado perdedor: BUY stop < entry < target; SELL stop > entry > target.
func TestPlanZones_StopNeverOnWinningSide(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		lower := 0.5 + rng.Float64()*100
		mid := lower * (1.0001 + rng.Float64()*0.05)
		upper := mid * (1.0001 + rng.Float64()*0.05)
		s := IndicatorSnapshot{
			ATR:   lower * (0.0001 + rng.Float64()*0.01),
			Bands: Bands{Lower: lower, Mid: mid, Upper: upper},
			Price: lower + rng.Float64()*(upper-lower),
		}
		k := 0.5 + rng.Float64()*3

		buy, ok := PlanZonesFor(DirectionBuy, s, k)
		require.True(t, ok)
		entry := buy.EntryFor(s.Price)
		assert.Less(t, buy.Stop, entry)
		assert.Less(t, entry, buy.Target)

		sell, ok := PlanZonesFor(DirectionSell, s, k)
		require.True(t, ok)
		entry = sell.EntryFor(s.Price)
		assert.Greater(t, sell.Stop, entry)
		assert.Greater(t, entry, sell.Target)
	}
}

// El pipeline puro no tiene estado oculto: misma entrada, mismo plan.
func TestPipeline_Idempotent(t *testing.T) {
	inst := Instrument{Symbol: "EURUSD", MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01}
	th := DefaultProfile(ModeStandard).Thresholds

	build := func() TradePlan {
		s := eurusdSnapshot()
		v, err := Classify(s, th)
		require.NoError(t, err)
		z, ok := PlanZones(v, s, 2)
		require.True(t, ok)
		entry := z.EntryFor(s.Price)
		size, err := SizePosition(10000, 0.01, entry, z.Stop, inst)
		require.NoError(t, err)
		return NewTradePlan(v, z, entry, size)
	}

	assert.Equal(t, build(), build())
}
