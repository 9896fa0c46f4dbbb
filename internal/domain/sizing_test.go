package domain

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fxInstrument = Instrument{Symbol: "EURUSD", MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01}

// sin máximo, para ver la fórmula sin el clamp
var unboundedFX = Instrument{Symbol: "EURUSD", MinVolume: 0.01, VolumeStep: 0.01}

func TestSizePosition_Scenario(t *testing.T) {
	// 0.01·10000 / 0.0050 = 20000 unidades
	size, err := SizePosition(10000, 0.01, 1.0850, 1.0800, unboundedFX)
	require.NoError(t, err)
	assert.InDelta(t, 20000.0, size, 1e-9)
	assert.InDelta(t, 10000*0.01, size*(1.0850-1.0800), 1e-6)
}

func TestSizePosition_ScenarioClampedToInstrumentMax(t *testing.T) {
	size, err := SizePosition(10000, 0.01, 1.0850, 1.0800, fxInstrument)
	require.NoError(t, err)
	assert.Equal(t, fxInstrument.MaxVolume, size)
}

func TestSizePosition_ClampedToMax(t *testing.T) {
	inst := fxInstrument
	inst.MaxVolume = 5
	size, err := SizePosition(10000, 0.01, 1.0850, 1.0800, inst)
	require.NoError(t, err)
	assert.Equal(t, 5.0, size)
}

func TestSizePosition_FloorsToStep(t *testing.T) {
	inst := Instrument{Symbol: "X", MinVolume: 0.1, VolumeStep: 0.1}
	// 10 / 0.003 = 3333.33…
	size, err := SizePosition(1000, 0.01, 1.003, 1.000, inst)
	require.NoError(t, err)
	assert.InDelta(t, 3333.3, size, 1e-9)
}

func TestSizePosition_BelowMinimum(t *testing.T) {
	inst := unboundedFX
	inst.MinVolume = 25000
	_, err := SizePosition(10000, 0.01, 1.0850, 1.0800, inst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientRiskBudget))
}

func TestSizePosition_RoundsToZero(t *testing.T) {
	inst := Instrument{Symbol: "X", VolumeStep: 1}
	_, err := SizePosition(10, 0.01, 1.5, 1.0, inst)
	assert.True(t, errors.Is(err, ErrInsufficientRiskBudget))
}

func TestSizePosition_InvalidInputs(t *testing.T) {
	cases := []struct {
		name                      string
		equity, risk, entry, stop float64
	}{
		{"zero equity", 0, 0.01, 1.1, 1.0},
		{"zero risk", 1000, 0, 1.1, 1.0},
		{"risk above one", 1000, 1.5, 1.1, 1.0},
		{"entry equals stop", 1000, 0.01, 1.1, 1.1},
		{"negative stop", 1000, 0.01, 1.1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SizePosition(tc.equity, tc.risk, tc.entry, tc.stop, fxInstrument)
			assert.True(t, IsValidation(err))
		})
	}
}

// size·|entry−stop| nunca supera equity·risk más un step.
func TestSizePosition_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		equity := 100 + rng.Float64()*1e6
		risk := 0.001 + rng.Float64()*0.05
		entry := 0.5 + rng.Float64()*200
		stop := entry * (1 + (rng.Float64()-0.5)*0.1)
		if stop == entry {
			continue
		}
		step := []float64{0.01, 0.1, 1}[rng.Intn(3)]
		inst := Instrument{Symbol: "X", MinVolume: step, VolumeStep: step}

		size, err := SizePosition(equity, risk, entry, stop, inst)
		if errors.Is(err, ErrInsufficientRiskBudget) {
			continue
		}
		require.NoError(t, err)

		dist := math.Abs(entry - stop)
		assert.LessOrEqual(t, size*dist, equity*risk+step*dist+1e-6, "case %d", i)
		assert.LessOrEqual(t, size*dist, equity*risk*(1+1e-9)+1e-6, "case %d", i)
	}
}
