package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TradeRecord is one settled trade as written to the ledger.
type TradeRecord struct {
	WorldID      uuid.UUID
	Tick         uint64
	Market       uint64
	Commodity    string
	Buyer        uint64
	Seller       uint64
	BuyerFamily  int
	SellerFamily int
	Units        int
	Price        float64
}

// PriceSample is a market's quote for one commodity at one tick.
type PriceSample struct {
	WorldID   uuid.UUID
	Tick      uint64
	Market    uint64
	Commodity string
	Price     float64
	Demand    float64
}

// LedgerWriter stores ledger batches. Each call is all-or-nothing.
type LedgerWriter interface {
	WriteTrades(ctx context.Context, trades []TradeRecord) error
	WritePrices(ctx context.Context, samples []PriceSample) error
}

// LedgerRepo is the Postgres LedgerWriter.
type LedgerRepo struct {
	db *DB
}

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

var tradeColumns = []string{
	"world_id", "tick", "market", "commodity", "buyer", "seller",
	"buyer_family", "seller_family", "units", "price",
}

// WriteTrades copies a batch of trades in a single transaction.
func (r *LedgerRepo) WriteTrades(ctx context.Context, trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("trades begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []any{
			t.WorldID, int64(t.Tick), int64(t.Market), t.Commodity, int64(t.Buyer), int64(t.Seller),
			t.BuyerFamily, t.SellerFamily, t.Units, t.Price,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"trades"}, tradeColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("trades copy: %w", err)
	}
	return tx.Commit(ctx)
}

// WritePrices upserts a batch of price samples in a single transaction.
func (r *LedgerRepo) WritePrices(ctx context.Context, samples []PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(
			`INSERT INTO price_samples (world_id, tick, market, commodity, price, demand)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (world_id, tick, market, commodity) DO UPDATE
			 SET price = EXCLUDED.price, demand = EXCLUDED.demand`,
			s.WorldID, int64(s.Tick), int64(s.Market), s.Commodity, s.Price, s.Demand,
		)
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("prices begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("prices insert: %w", err)
	}
	return tx.Commit(ctx)
}

// MaxPending caps how many unflushed records a Journal keeps while the
// database is unreachable. The oldest are dropped first.
const MaxPending = 50_000

// Journal buffers ledger records between flushes. Game loop only.
type Journal struct {
	w      LedgerWriter
	trades []TradeRecord
	prices []PriceSample
	log    *zap.Logger
}

func NewJournal(w LedgerWriter, log *zap.Logger) *Journal {
	return &Journal{w: w, log: log}
}

func (j *Journal) Record(t TradeRecord) {
	j.trades = append(j.trades, t)
	if over := len(j.trades) - MaxPending; over > 0 {
		j.log.Warn("ledger backlog full, dropping oldest trades", zap.Int("dropped", over))
		j.trades = append(j.trades[:0], j.trades[over:]...)
	}
}

func (j *Journal) Sample(s PriceSample) {
	j.prices = append(j.prices, s)
	if over := len(j.prices) - MaxPending; over > 0 {
		j.prices = append(j.prices[:0], j.prices[over:]...)
	}
}

// Pending returns the number of buffered trades and price samples.
func (j *Journal) Pending() (trades, prices int) {
	return len(j.trades), len(j.prices)
}

// Flush writes everything buffered. Records that fail to write stay
// buffered for the next flush.
func (j *Journal) Flush(ctx context.Context) error {
	if err := j.w.WriteTrades(ctx, j.trades); err != nil {
		return fmt.Errorf("flush trades: %w", err)
	}
	j.trades = j.trades[:0]
	if err := j.w.WritePrices(ctx, j.prices); err != nil {
		return fmt.Errorf("flush prices: %w", err)
	}
	j.prices = j.prices[:0]
	return nil
}
