package domain

import "time"

// SignalRecord es una fila del log de señales: qué vio el clasificador para
// un símbolo en un ciclo y si terminó en plan.
type SignalRecord struct {
	Cycle     int64
	Symbol    string
	Timeframe string
	Verdict   SignalVerdict
	RSI       float64
	MACDHist  float64
	ADX       float64
	ATR       float64
	Price     float64
	Planned   bool
	Note      string
	At        time.Time
}

// NewSignalRecord arma la fila a partir del snapshot y su veredicto.
func NewSignalRecord(cycle int64, s IndicatorSnapshot, v SignalVerdict, planned bool, note string, at time.Time) SignalRecord {
	return SignalRecord{
		Cycle:     cycle,
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Verdict:   v,
		RSI:       s.RSI,
		MACDHist:  s.MACDHist,
		ADX:       s.ADX,
		ATR:       s.ATR,
		Price:     s.Price,
		Planned:   planned,
		Note:      note,
		At:        at,
	}
}

// CycleSummary es el resumen ligero de un ciclo del scheduler.
type CycleSummary struct {
	Cycle       int64
	StartedAt   time.Time
	Duration    time.Duration
	Mode        Mode
	Execution   ExecutionMode
	Processed   int
	Skipped     int
	Failed      int
	Orders      int
	Closed      int
	Aborted     bool
	AbortReason string
}

// JournalStats agrega el histórico del journal para el reporte.
type JournalStats struct {
	Orders     int                `json:"orders"`
	Active     int                `json:"active"`
	ByOutcome  map[OrderState]int `json:"by_outcome"`
	Signals    int                `json:"signals"`
	Planned    int                `json:"planned"`
	Cycles     int                `json:"cycles"`
	Aborted    int                `json:"aborted"`
	Retries    int                `json:"retries"`
	FirstCycle time.Time          `json:"first_cycle,omitempty"`
	LastCycle  time.Time          `json:"last_cycle,omitempty"`
}

// WinRate es target / (target + stop). 0 sin cierres por nivel.
func (s JournalStats) WinRate() float64 {
	wins := s.ByOutcome[StateClosedByTarget]
	losses := s.ByOutcome[StateClosedByStop]
	if wins+losses == 0 {
		return 0
	}
	return float64(wins) / float64(wins+losses)
}
