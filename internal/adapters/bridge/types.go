package bridge

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Wire types of the bridge API. Tickets and error codes arrive as numbers
// from some terminals and as strings from others.

type connectRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type accountResponse struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	DailyPnL    float64 `json:"daily_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

type quoteResponse struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

type candleDTO struct {
	Time   int64   `json:"time"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type candlesResponse struct {
	Candles []candleDTO `json:"candles"`
}

type symbolResponse struct {
	MinVolume  float64 `json:"min_volume"`
	MaxVolume  float64 `json:"max_volume"`
	VolumeStep float64 `json:"volume_step"`
}

type orderRequest struct {
	domain.OrderRequest
	Deviation int `json:"deviation"`
	Magic     int `json:"magic,omitempty"`
}

type orderResponse struct {
	Ticket json.RawMessage `json:"ticket"`
}

type positionDTO struct {
	Ticket       json.RawMessage  `json:"ticket"`
	ClientID     string           `json:"client_id"`
	Symbol       string           `json:"symbol"`
	Side         domain.Direction `json:"side"`
	Volume       float64          `json:"volume"`
	PriceOpen    float64          `json:"price_open"`
	PriceCurrent float64          `json:"price_current"`
	SL           float64          `json:"sl"`
	TP           float64          `json:"tp"`
}

type positionsResponse struct {
	Positions []positionDTO `json:"positions"`
}

type errorResponse struct {
	Code  json.RawMessage `json:"code"`
	Error string          `json:"error"`
}

func (c candleDTO) toDomain() domain.Candle {
	return domain.Candle{
		Time:   time.Unix(c.Time, 0).UTC(),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}

func (p positionDTO) toDomain() domain.Position {
	return domain.Position{
		Ticket:       rawString(p.Ticket),
		ClientID:     p.ClientID,
		Symbol:       p.Symbol,
		Direction:    domain.Direction(strings.ToUpper(string(p.Side))),
		Volume:       p.Volume,
		OpenPrice:    p.PriceOpen,
		CurrentPrice: p.PriceCurrent,
		Stop:         p.SL,
		Target:       p.TP,
	}
}

// rawString renders a JSON scalar (string or number) as a plain string.
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}
