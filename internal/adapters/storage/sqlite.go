package storage

// sqlite.go: journal del motor en SQLite.
//
// Estrategia:
//   - `orders`: UNA fila por orden (INSERT OR REPLACE). Es la fuente de verdad
//     para recuperar órdenes vivas tras un reinicio.
//   - `order_events`: append-only, una fila por transición.
//   - `alerts`: copia de cada alerta emitida, para el reporte.
//   - `signals`: una fila por símbolo evaluado en cada ciclo.
//   - `cycles`: resumen ligero por ciclo del scheduler.
//   - Prune automático al arrancar: signals > 14d, cycles > 30d, órdenes
//     archivadas > 90d (con sus eventos).

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    symbol      TEXT     NOT NULL,
    direction   TEXT     NOT NULL,
    size        REAL     NOT NULL DEFAULT 0,
    entry       REAL     NOT NULL DEFAULT 0,
    stop        REAL     NOT NULL DEFAULT 0,
    target      REAL     NOT NULL DEFAULT 0,
    ticket      TEXT     NOT NULL DEFAULT '',
    state       TEXT     NOT NULL,
    outcome     TEXT     NOT NULL DEFAULT '',
    retries     INTEGER  NOT NULL DEFAULT 0,
    last_error  TEXT     NOT NULL DEFAULT '',
    execution   TEXT     NOT NULL DEFAULT '',
    fill_price  REAL     NOT NULL DEFAULT 0,
    last_price  REAL     NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    archived_at DATETIME
);

-- Historial de transiciones (append-only)
CREATE TABLE IF NOT EXISTS order_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id   TEXT     NOT NULL,
    from_state TEXT     NOT NULL,
    to_state   TEXT     NOT NULL,
    detail     TEXT     NOT NULL DEFAULT '',
    at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id  TEXT     NOT NULL DEFAULT '',
    symbol    TEXT     NOT NULL,
    direction TEXT     NOT NULL DEFAULT '',
    entry     REAL     NOT NULL DEFAULT 0,
    stop      REAL     NOT NULL DEFAULT 0,
    target    REAL     NOT NULL DEFAULT 0,
    size      REAL     NOT NULL DEFAULT 0,
    ticket    TEXT,
    outcome   TEXT     NOT NULL,
    detail    TEXT     NOT NULL DEFAULT '',
    at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle          INTEGER  NOT NULL,
    symbol         TEXT     NOT NULL,
    timeframe      TEXT     NOT NULL DEFAULT '',
    mode           TEXT     NOT NULL DEFAULT '',
    structure      TEXT     NOT NULL,
    liquidity      TEXT     NOT NULL,
    zone           TEXT     NOT NULL,
    momentum       TEXT     NOT NULL,
    histogram      TEXT     NOT NULL,
    moving_average TEXT     NOT NULL,
    strength       TEXT     NOT NULL,
    volatility     TEXT     NOT NULL,
    score          REAL     NOT NULL DEFAULT 0,
    rsi            REAL     NOT NULL DEFAULT 0,
    macd_hist      REAL     NOT NULL DEFAULT 0,
    adx            REAL     NOT NULL DEFAULT 0,
    atr            REAL     NOT NULL DEFAULT 0,
    price          REAL     NOT NULL DEFAULT 0,
    planned        INTEGER  NOT NULL DEFAULT 0,
    note           TEXT     NOT NULL DEFAULT '',
    at             DATETIME NOT NULL
);

-- Resumen ligero por ciclo del scheduler
CREATE TABLE IF NOT EXISTS cycles (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle        INTEGER  NOT NULL,
    started_at   DATETIME NOT NULL,
    duration_ms  INTEGER  NOT NULL DEFAULT 0,
    mode         TEXT     NOT NULL DEFAULT '',
    execution    TEXT     NOT NULL DEFAULT '',
    processed    INTEGER  NOT NULL DEFAULT 0,
    skipped      INTEGER  NOT NULL DEFAULT 0,
    failed       INTEGER  NOT NULL DEFAULT 0,
    orders       INTEGER  NOT NULL DEFAULT 0,
    closed       INTEGER  NOT NULL DEFAULT 0,
    aborted      INTEGER  NOT NULL DEFAULT 0,
    abort_reason TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_state   ON orders(state);
CREATE INDEX IF NOT EXISTS idx_orders_symbol  ON orders(symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_order   ON order_events(order_id, id);
CREATE INDEX IF NOT EXISTS idx_alerts_at      ON alerts(at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, at DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_at      ON cycles(started_at DESC);
`

const (
	retentionSignals = 14 * 24 * time.Hour // señales: 14 días
	retentionCycles  = 30 * 24 * time.Hour // ciclos: 30 días
	retentionOrders  = 90 * 24 * time.Hour // órdenes archivadas: 90 días
)

// SQLiteStorage implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
// Las órdenes no archivadas nunca se tocan.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM signals WHERE at < ?`, now.Add(-retentionSignals))
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, now.Add(-retentionCycles))

	cutoff := now.Add(-retentionOrders)
	s.db.ExecContext(ctx, `
		DELETE FROM order_events WHERE order_id IN (
			SELECT id FROM orders WHERE archived_at IS NOT NULL AND archived_at < ?)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE archived_at IS NOT NULL AND archived_at < ?`, cutoff)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime acepta lo que devuelva el driver para una columna DATETIME leída como texto.
func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST", // time.Time.String()
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
