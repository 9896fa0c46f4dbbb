package domain

import "math"

// DefaultStopATRMultiplier es el k por defecto del stop (stop = banda ∓ k·ATR).
const DefaultStopATRMultiplier = 2.0

// Direction es el lado de la operación.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid devuelve true si la dirección es BUY o SELL.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Motivos de "sin plan".
const (
	NoPlanRange        = "range"
	NoPlanBandsMissing = "bands_missing"
	NoPlanATRMissing   = "atr_missing"
	NoPlanStopInvalid  = "stop_invalid"
)

// Zones son las zonas de precio de un plan: entrada [EntryLow, EntryHigh], stop y objetivo.
type Zones struct {
	Direction Direction `json:"direction"`
	EntryLow  float64   `json:"entry_low"`
	EntryHigh float64   `json:"entry_high"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Reason    string    `json:"reason,omitempty"` // solo cuando no hay plan
}

// Contains devuelve true si price está dentro de la zona de entrada.
func (z Zones) Contains(price float64) bool {
	return price >= z.EntryLow && price <= z.EntryHigh
}

// EntryFor lleva el precio actual al interior de la zona de entrada.
// Sin precio usa el punto medio de la zona.
func (z Zones) EntryFor(price float64) float64 {
	if price <= 0 {
		return (z.EntryLow + z.EntryHigh) / 2
	}
	return math.Min(math.Max(price, z.EntryLow), z.EntryHigh)
}

// PlanZones calcula las zonas para el veredicto. Devuelve false (sin plan)
// cuando la estructura es rango o faltan bandas/ATR. Nunca falla.
func PlanZones(v SignalVerdict, s IndicatorSnapshot, k float64) (Zones, bool) {
	dir, ok := v.Direction()
	if !ok {
		return Zones{Reason: NoPlanRange}, false
	}
	return PlanZonesFor(dir, s, k)
}

// PlanZonesFor calcula las zonas para una dirección dada (propuestas externas).
func PlanZonesFor(dir Direction, s IndicatorSnapshot, k float64) (Zones, bool) {
	b := s.Bands
	if !b.Valid() {
		return Zones{Direction: dir, Reason: NoPlanBandsMissing}, false
	}
	if !(s.ATR > 0) {
		return Zones{Direction: dir, Reason: NoPlanATRMissing}, false
	}
	if k <= 0 {
		k = DefaultStopATRMultiplier
	}

	var z Zones
	switch dir {
	case DirectionBuy:
		z = Zones{
			Direction: dir,
			EntryLow:  b.Lower,
			EntryHigh: b.Mid,
			Stop:      b.Lower - k*s.ATR,
			Target:    b.Upper,
		}
	case DirectionSell:
		z = Zones{
			Direction: dir,
			EntryLow:  b.Mid,
			EntryHigh: b.Upper,
			Stop:      b.Upper + k*s.ATR,
			Target:    b.Lower,
		}
	default:
		return Zones{Reason: NoPlanRange}, false
	}

	if z.Stop <= 0 {
		return Zones{Direction: dir, Reason: NoPlanStopInvalid}, false
	}
	return z, true
}

// TradePlan es un veredicto con zonas y tamaño, listo para el gestor de órdenes.
// No contiene estado dependiente del tiempo.
type TradePlan struct {
	Symbol    string        `json:"symbol"`
	Direction Direction     `json:"direction"`
	Verdict   SignalVerdict `json:"verdict"`
	Zones     Zones         `json:"zones"`
	Entry     float64       `json:"entry"`
	Stop      float64       `json:"stop"`
	Target    float64       `json:"target"`
	Size      float64       `json:"size"`
	Comment   string        `json:"comment,omitempty"`
}

// NewTradePlan arma el plan a partir de zonas, entrada y tamaño ya calculados.
func NewTradePlan(v SignalVerdict, z Zones, entry, size float64) TradePlan {
	return TradePlan{
		Symbol:    v.Symbol,
		Direction: z.Direction,
		Verdict:   v,
		Zones:     z,
		Entry:     entry,
		Stop:      z.Stop,
		Target:    z.Target,
		Size:      size,
	}
}

// RiskDistance devuelve |entry - stop|.
func (p TradePlan) RiskDistance() float64 {
	return math.Abs(p.Entry - p.Stop)
}
