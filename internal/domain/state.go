package domain

import "time"

// SymbolState es el slot de un símbolo dentro del RuntimeState.
type SymbolState struct {
	Snapshot  *IndicatorSnapshot `json:"snapshot,omitempty"`
	Verdict   *SignalVerdict     `json:"verdict,omitempty"`
	Plan      *TradePlan         `json:"plan,omitempty"`
	Orders    []OrderSummary     `json:"orders"`
	Note      string             `json:"note,omitempty"` // motivo de skip o error
	UpdatedAt time.Time          `json:"updated_at"`
}

// RuntimeState es la foto completa que consumen dashboards y CLIs.
// Se reemplaza entera en cada ciclo; nunca se muta una foto publicada.
type RuntimeState struct {
	Cycle     int64                  `json:"cycle"`
	Mode      Mode                   `json:"mode"`
	Execution ExecutionMode          `json:"execution"`
	Running   bool                   `json:"running"`
	Aborted   bool                   `json:"aborted"`
	Account   *AccountSnapshot       `json:"account,omitempty"`
	Symbols   map[string]SymbolState `json:"symbols"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Clone devuelve una copia profunda.
func (s RuntimeState) Clone() RuntimeState {
	out := s
	if s.Account != nil {
		a := *s.Account
		out.Account = &a
	}
	out.Symbols = make(map[string]SymbolState, len(s.Symbols))
	for k, v := range s.Symbols {
		out.Symbols[k] = v.clone()
	}
	return out
}

func (s SymbolState) clone() SymbolState {
	out := s
	if s.Snapshot != nil {
		snap := *s.Snapshot
		out.Snapshot = &snap
	}
	if s.Verdict != nil {
		v := *s.Verdict
		out.Verdict = &v
	}
	if s.Plan != nil {
		p := *s.Plan
		out.Plan = &p
	}
	out.Orders = append([]OrderSummary(nil), s.Orders...)
	return out
}
