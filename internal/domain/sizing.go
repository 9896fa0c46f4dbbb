package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SizePosition calcula el volumen que arriesga equity·riskFraction entre entry y stop.
//
//	raw  = equity·riskFraction / |entry − stop|
//	size = floor(raw / step)·step, acotado a [min, max]
//
// Devuelve ErrInsufficientRiskBudget si el tamaño redondeado queda bajo el mínimo.
// La aritmética va en decimal para que el floor al step no dependa del error de float.
func SizePosition(equity, riskFraction, entry, stop float64, inst Instrument) (float64, error) {
	switch {
	case !(equity > 0):
		return 0, &ValidationError{Field: "equity", Reason: "must be positive"}
	case !(riskFraction > 0) || riskFraction > 1:
		return 0, &ValidationError{Field: "risk_fraction", Reason: "must be in (0,1]"}
	case !(entry > 0) || !(stop > 0):
		return 0, &ValidationError{Field: "entry/stop", Reason: "must be positive"}
	case entry == stop:
		return 0, &ValidationError{Field: "entry/stop", Reason: "zero risk distance"}
	case inst.MinVolume < 0 || inst.VolumeStep < 0 || inst.MaxVolume < 0:
		return 0, &ValidationError{Field: "instrument", Reason: "negative volume constraint"}
	case inst.MaxVolume > 0 && inst.MaxVolume < inst.MinVolume:
		return 0, &ValidationError{Field: "instrument", Reason: "max below min"}
	}

	budget := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(riskFraction))
	dist := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	size := budget.Div(dist)

	if inst.VolumeStep > 0 {
		step := decimal.NewFromFloat(inst.VolumeStep)
		size = size.Div(step).Floor().Mul(step)
	}

	minVol := decimal.NewFromFloat(inst.MinVolume)
	if !size.IsPositive() || size.LessThan(minVol) {
		return 0, fmt.Errorf("%w: size %s below minimum %s for %s",
			ErrInsufficientRiskBudget, size.String(), minVol.String(), inst.Symbol)
	}

	if inst.MaxVolume > 0 {
		maxVol := decimal.NewFromFloat(inst.MaxVolume)
		if size.GreaterThan(maxVol) {
			size = maxVol
		}
	}

	f, _ := size.Float64()
	return f, nil
}
