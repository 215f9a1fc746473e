package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS trades (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id    TEXT     NOT NULL,
    market_id   TEXT     NOT NULL,
    order_id    TEXT     NOT NULL,
    outcome     INTEGER  NOT NULL,
    side        TEXT     NOT NULL,
    price       INTEGER  NOT NULL, -- milli-odds
    stake       INTEGER  NOT NULL, -- cents
    executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS payouts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id    TEXT     NOT NULL,
    entity_type  TEXT     NOT NULL, -- position | order | sweep
    entity_id    TEXT     NOT NULL,
    purchaser_id TEXT     NOT NULL,
    kind         TEXT     NOT NULL, -- payout | refund | void_refund | sweep
    amount       INTEGER  NOT NULL, -- cents
    paid_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market  ON trades(market_id);
CREATE INDEX IF NOT EXISTS idx_payouts_market ON payouts(market_id);
`

// HistoryStore persists an audit trail of executed trades and settlement
// payouts in SQLite (pure Go driver, no CGo). It is write-mostly: the
// engine records, operators query offline.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) the database at the given DSN and
// applies the schema. Use ":memory:" for an ephemeral store.
func NewHistoryStore(dsn string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.NewHistoryStore: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewHistoryStore: apply schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// TradeRecord is one executed pairing, from the perspective of one order.
type TradeRecord struct {
	TradeID    string
	MarketID   string
	OrderID    string
	Outcome    int
	Side       string
	Price      int64 // milli-odds
	Stake      int64 // cents
	ExecutedAt time.Time
}

// RecordTrade appends a trade row.
func (s *HistoryStore) RecordTrade(t TradeRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO trades (trade_id, market_id, order_id, outcome, side, price, stake, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.MarketID, t.OrderID, t.Outcome, t.Side, t.Price, t.Stake, t.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.RecordTrade: %w", err)
	}
	return nil
}

// PayoutRecord is one settlement-time transfer out of escrow.
type PayoutRecord struct {
	MarketID    string
	EntityType  string
	EntityID    string
	PurchaserID string
	Kind        string
	Amount      int64 // cents
	PaidAt      time.Time
}

// RecordPayout appends a payout row.
func (s *HistoryStore) RecordPayout(p PayoutRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO payouts (market_id, entity_type, entity_id, purchaser_id, kind, amount, paid_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MarketID, p.EntityType, p.EntityID, p.PurchaserID, p.Kind, p.Amount, p.PaidAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.RecordPayout: %w", err)
	}
	return nil
}

// TradeCount returns the number of trade rows for a market.
func (s *HistoryStore) TradeCount(marketID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE market_id = ?`, marketID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store.TradeCount: %w", err)
	}
	return n, nil
}

// PayoutTotal returns the summed payout amount for a market.
func (s *HistoryStore) PayoutTotal(marketID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(amount) FROM payouts WHERE market_id = ?`, marketID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store.PayoutTotal: %w", err)
	}
	return total.Int64, nil
}
