package domain

import (
	"fmt"
	"time"
)

// Mode es la cadencia operativa del bot.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeScalp    Mode = "scalp"
	ModeHFT      Mode = "hft"
)

// ParseMode valida el nombre de un modo.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStandard, ModeScalp, ModeHFT:
		return Mode(s), nil
	case "":
		return ModeStandard, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ExecutionMode decide hasta dónde llega una orden: nada, simulador o broker real.
type ExecutionMode string

const (
	ExecDryRun ExecutionMode = "dry-run"
	ExecPaper  ExecutionMode = "paper"
	ExecLive   ExecutionMode = "live"
)

// ParseExecutionMode valida el nombre de un modo de ejecución.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ExecDryRun, ExecPaper, ExecLive:
		return ExecutionMode(s), nil
	case "":
		return ExecDryRun, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// Thresholds agrupa los umbrales fijos del clasificador.
type Thresholds struct {
	RSIOversold   float64 // RSI < esto → alcista
	RSIOverbought float64 // RSI > esto → bajista
	HistEpsilon   float64 // |hist| <= esto → neutral
	ADXStrong     float64
	ADXDeveloping float64
	ATRHigh       float64 // solo informativo
	ATRLow        float64
	BandProximity float64 // fracción del ancho de bandas que cuenta como "cerca" de un extremo
}

// ModeProfile son las constantes de un modo. Se elige una vez por ciclo.
type ModeProfile struct {
	Mode             Mode
	Thresholds       Thresholds
	CycleInterval    time.Duration
	SymbolDelay      time.Duration
	Timeframe        string
	ConfirmTimeframe string  // vacío = sin confirmación en temporalidad mayor
	MinATR           float64 // ATR por debajo de esto veta el plan
}

var standardThresholds = Thresholds{
	RSIOversold:   30,
	RSIOverbought: 70,
	HistEpsilon:   1e-9,
	ADXStrong:     25,
	ADXDeveloping: 20,
	ATRHigh:       0.005,
	ATRLow:        0.002,
	BandProximity: 0.10,
}

// DefaultProfile devuelve el perfil por defecto de cada modo.
func DefaultProfile(m Mode) ModeProfile {
	switch m {
	case ModeScalp:
		th := standardThresholds
		th.RSIOversold = 25
		th.RSIOverbought = 75
		return ModeProfile{
			Mode:          ModeScalp,
			Thresholds:    th,
			CycleInterval: 15 * time.Second,
			SymbolDelay:   500 * time.Millisecond,
			Timeframe:     "M1",
		}
	case ModeHFT:
		return ModeProfile{
			Mode:          ModeHFT,
			Thresholds:    standardThresholds,
			CycleInterval: 2 * time.Second,
			SymbolDelay:   250 * time.Millisecond,
			Timeframe:     "M1",
		}
	default:
		return ModeProfile{
			Mode:             ModeStandard,
			Thresholds:       standardThresholds,
			CycleInterval:    60 * time.Second,
			SymbolDelay:      2 * time.Second,
			Timeframe:        "M15",
			ConfirmTimeframe: "H1",
		}
	}
}
