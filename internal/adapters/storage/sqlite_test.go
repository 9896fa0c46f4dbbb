package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/storage"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Journal = (*storage.SQLiteStorage)(nil)

func openDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeOrder(id string, state domain.OrderState, created time.Time) domain.OrderRecord {
	return domain.OrderRecord{
		ID:        id,
		Symbol:    "EURUSD",
		Direction: domain.DirectionBuy,
		Size:      0.5,
		Entry:     1.0805,
		Stop:      1.0775,
		Target:    1.0875,
		State:     state,
		Execution: domain.ExecPaper,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSQLiteStorage_SaveOrderUpserts(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	o := makeOrder("a", domain.StateSubmitting, now)
	require.NoError(t, db.SaveOrder(ctx, o))

	o.State = domain.StateOpen
	o.Ticket = "5551234"
	o.FillPrice = 1.0806
	o.Retries = 1
	require.NoError(t, db.SaveOrder(ctx, o))

	got, err := db.Order(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, got.State)
	assert.Equal(t, "5551234", got.Ticket)
	assert.Equal(t, 1.0806, got.FillPrice)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, domain.DirectionBuy, got.Direction)
	assert.Equal(t, domain.ExecPaper, got.Execution)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Nil(t, got.ArchivedAt)

	recent, err := db.RecentOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSQLiteStorage_OrderNotFound(t *testing.T) {
	db := openDB(t)
	_, err := db.Order(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLiteStorage_ActiveOrders(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	archived := makeOrder("done", domain.StateArchived, base)
	archived.Outcome = domain.StateClosedByTarget
	at := base.Add(time.Minute)
	archived.ArchivedAt = &at

	require.NoError(t, db.SaveOrder(ctx, makeOrder("open", domain.StateOpen, base.Add(2*time.Second))))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("sub", domain.StateSubmitting, base.Add(time.Second))))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("conf", domain.StateConfirmed, base.Add(3*time.Second))))
	require.NoError(t, db.SaveOrder(ctx, archived))

	active, err := db.ActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	// más antiguas primero
	assert.Equal(t, "sub", active[0].ID)
	assert.Equal(t, "open", active[1].ID)
	assert.Equal(t, "conf", active[2].ID)

	got, err := db.Order(ctx, "done")
	require.NoError(t, err)
	require.NotNil(t, got.ArchivedAt)
	assert.True(t, at.Equal(*got.ArchivedAt))
	assert.Equal(t, domain.StateClosedByTarget, got.Outcome)
}

func TestSQLiteStorage_Transitions(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	steps := []domain.OrderTransition{
		{OrderID: "a", From: domain.StatePlanned, To: domain.StateSubmitting, At: now},
		{OrderID: "a", From: domain.StateSubmitting, To: domain.StateConfirmed, At: now, Detail: "ticket 1"},
		{OrderID: "b", From: domain.StatePlanned, To: domain.StateDryRun, At: now},
		{OrderID: "a", From: domain.StateConfirmed, To: domain.StateOpen, At: now},
	}
	for _, s := range steps {
		require.NoError(t, db.SaveTransition(ctx, s))
	}

	got, err := db.Transitions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.StateSubmitting, got[0].To)
	assert.Equal(t, "ticket 1", got[1].Detail)
	assert.Equal(t, domain.StateOpen, got[2].To)
}

func TestSQLiteStorage_AlertsKeepNullTicket(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	ticket := "777"

	require.NoError(t, db.SaveAlert(ctx, domain.Alert{
		Symbol: "EURUSD", Outcome: string(domain.StateDryRun), Entry: 1.08, At: now,
	}))
	require.NoError(t, db.SaveAlert(ctx, domain.Alert{
		Symbol: "GBPUSD", Direction: domain.DirectionSell, Ticket: &ticket,
		Outcome: string(domain.StateConfirmed), At: now.Add(time.Second),
	}))

	alerts, err := db.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "GBPUSD", alerts[0].Symbol)
	require.NotNil(t, alerts[0].Ticket)
	assert.Equal(t, "777", *alerts[0].Ticket)
	assert.Equal(t, domain.DirectionSell, alerts[0].Direction)

	assert.Nil(t, alerts[1].Ticket)
	assert.Equal(t, "-", alerts[1].TicketString())
}

func TestSQLiteStorage_SignalsRoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := domain.SignalRecord{
		Cycle:     4,
		Symbol:    "EURUSD",
		Timeframe: "M15",
		Verdict: domain.SignalVerdict{
			Mode:          domain.ModeStandard,
			Momentum:      domain.BiasNeutral,
			Histogram:     domain.BiasBullish,
			MovingAverage: domain.BiasBullish,
			Strength:      domain.StrengthStrong,
			Volatility:    domain.VolatilityNormal,
			Score:         7.8,
			Structure:     domain.StructureBullish,
			Liquidity:     domain.LiquiditySellside,
			Zone:          domain.ZoneDiscount,
		},
		RSI:     55,
		ADX:     28,
		ATR:     0.0012,
		Price:   1.0805,
		Planned: true,
		At:      now,
	}
	require.NoError(t, db.SaveSignal(ctx, rec))
	other := rec
	other.Symbol = "GBPUSD"
	require.NoError(t, db.SaveSignal(ctx, other))

	got, err := db.SignalsFor(ctx, "EURUSD", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].Cycle)
	assert.Equal(t, domain.StructureBullish, got[0].Verdict.Structure)
	assert.Equal(t, domain.ZoneDiscount, got[0].Verdict.Zone)
	assert.Equal(t, domain.StrengthStrong, got[0].Verdict.Strength)
	assert.InDelta(t, 7.8, got[0].Verdict.Score, 1e-9)
	assert.True(t, got[0].Planned)
}

func TestSQLiteStorage_CyclesAndStats(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SaveCycle(ctx, domain.CycleSummary{
		Cycle: 1, StartedAt: base, Duration: 1500 * time.Millisecond,
		Mode: domain.ModeStandard, Execution: domain.ExecPaper, Processed: 5, Orders: 1,
	}))
	require.NoError(t, db.SaveCycle(ctx, domain.CycleSummary{
		Cycle: 2, StartedAt: base.Add(time.Minute), Processed: 2, Failed: 1,
		Aborted: true, AbortReason: "broker disconnected",
	}))

	cycles, err := db.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, int64(2), cycles[0].Cycle)
	assert.True(t, cycles[0].Aborted)
	assert.Equal(t, "broker disconnected", cycles[0].AbortReason)
	assert.Equal(t, 1500*time.Millisecond, cycles[1].Duration)
	assert.Equal(t, domain.ExecPaper, cycles[1].Execution)

	win := makeOrder("w", domain.StateArchived, base)
	win.Outcome = domain.StateClosedByTarget
	loss := makeOrder("l", domain.StateArchived, base)
	loss.Outcome = domain.StateClosedByStop
	loss.Retries = 2
	require.NoError(t, db.SaveOrder(ctx, win))
	require.NoError(t, db.SaveOrder(ctx, loss))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("o", domain.StateOpen, base)))
	require.NoError(t, db.SaveSignal(ctx, domain.SignalRecord{Symbol: "EURUSD", Planned: true, At: base}))
	require.NoError(t, db.SaveSignal(ctx, domain.SignalRecord{Symbol: "EURUSD", At: base}))

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Orders)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.Retries)
	assert.Equal(t, 1, stats.ByOutcome[domain.StateClosedByTarget])
	assert.Equal(t, 1, stats.ByOutcome[domain.StateClosedByStop])
	assert.InDelta(t, 0.5, stats.WinRate(), 1e-9)
	assert.Equal(t, 2, stats.Signals)
	assert.Equal(t, 1, stats.Planned)
	assert.Equal(t, 2, stats.Cycles)
	assert.Equal(t, 1, stats.Aborted)
	assert.True(t, base.Equal(stats.FirstCycle))
	assert.True(t, base.Add(time.Minute).Equal(stats.LastCycle))
}

func TestSQLiteStorage_EmptyStats(t *testing.T) {
	db := openDB(t)
	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Orders)
	assert.Zero(t, stats.WinRate())
	assert.True(t, stats.FirstCycle.IsZero())
}
