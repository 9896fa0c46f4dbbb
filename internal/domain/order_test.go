package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyRecord() *OrderRecord {
	plan := TradePlan{
		Symbol:    "EURUSD",
		Direction: DirectionBuy,
		Entry:     1.0805,
		Stop:      1.0775,
		Target:    1.0875,
		Size:      0.5,
	}
	return NewOrderRecord("id-1", plan, ExecLive, time.Unix(0, 0))
}

func TestOrderRecord_HappyPath(t *testing.T) {
	r := buyRecord()
	now := time.Unix(10, 0)

	for _, to := range []OrderState{StateSubmitting, StateConfirmed, StateOpen, StateClosedByTarget, StateArchived} {
		tr, err := r.Transition(to, now, "")
		require.NoError(t, err, "to %s", to)
		assert.Equal(t, to, tr.To)
	}

	assert.Equal(t, StateArchived, r.State)
	assert.Equal(t, StateClosedByTarget, r.Outcome)
	require.NotNil(t, r.ArchivedAt)
}

func TestOrderRecord_IllegalTransitions(t *testing.T) {
	r := buyRecord()
	_, err := r.Transition(StateOpen, time.Now(), "")
	assert.Error(t, err)

	_, err = r.Transition(StateSubmitting, time.Now(), "")
	require.NoError(t, err)
	_, err = r.Transition(StateRejected, time.Now(), "bad volume")
	require.NoError(t, err)

	// Un rechazo nunca llega a Open.
	_, err = r.Transition(StateOpen, time.Now(), "")
	assert.Error(t, err)
	assert.Equal(t, StateRejected, r.State)
}

func TestOrderState_Flags(t *testing.T) {
	assert.True(t, StateOpen.Active())
	assert.False(t, StateRejected.Active())
	assert.True(t, StateSkippedRiskLimit.Outcome())
	assert.True(t, StateDryRun.Outcome())
	assert.False(t, StateOpen.Outcome())
	assert.True(t, StateClosedManually.Closed())
}

// --- InferCloseReason ---

func TestInferCloseReason(t *testing.T) {
	buy := *buyRecord()
	sell := buy
	sell.Direction = DirectionSell
	sell.Entry, sell.Stop, sell.Target = 1.0850, 1.0880, 1.0799

	cases := []struct {
		name  string
		rec   OrderRecord
		price float64
		want  OrderState
	}{
		{"buy at stop", buy, 1.0775, StateClosedByStop},
		{"buy near stop", buy, 1.0777, StateClosedByStop},
		{"buy at target", buy, 1.0875, StateClosedByTarget},
		{"buy in the middle", buy, 1.0830, StateClosedManually},
		{"sell at stop", sell, 1.0881, StateClosedByStop},
		{"sell at target", sell, 1.0800, StateClosedByTarget},
		{"sell in the middle", sell, 1.0840, StateClosedManually},
		{"unknown price", buy, 0, StateClosedManually},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferCloseReason(tc.rec, tc.price, 0.1))
		})
	}
}

// --- Account gate ---

func TestAccountSnapshot_DailyLossAtLimitRefuses(t *testing.T) {
	acct := AccountSnapshot{Balance: 9700, Equity: 9700, DailyPnL: -300}
	assert.InDelta(t, 0.03, acct.DailyLossFraction(), 1e-12)

	refused, reason := acct.RiskGate(0.03, 0)
	assert.True(t, refused)
	assert.Contains(t, reason, "daily loss")
}

func TestAccountSnapshot_GainsDoNotCount(t *testing.T) {
	acct := AccountSnapshot{Balance: 10300, Equity: 10300, DailyPnL: 300}
	refused, _ := acct.RiskGate(0.03, 0)
	assert.False(t, refused)
}

func TestAccountSnapshot_EquityFloor(t *testing.T) {
	acct := AccountSnapshot{Balance: 90, Equity: 80}
	refused, reason := acct.RiskGate(0.03, 100)
	assert.True(t, refused)
	assert.Contains(t, reason, "equity")
}

func TestProposal_Validate(t *testing.T) {
	assert.NoError(t, Proposal{Action: ActionOrderSend, Symbol: "EURUSD", Direction: DirectionBuy}.Validate())
	assert.NoError(t, Proposal{Action: ActionClosePosition, Ticket: "42"}.Validate())
	assert.Error(t, Proposal{Action: ActionOrderSend, Symbol: "EURUSD"}.Validate())
	assert.Error(t, Proposal{Action: ActionClosePosition}.Validate())
	assert.Error(t, Proposal{Action: "modify"}.Validate())
}
