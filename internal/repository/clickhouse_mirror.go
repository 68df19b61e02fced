package repository

import (
	"context"
	"fmt"
	"time"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	pkgch "MarketEngine/pkg/clickhouse"
	xlogger "MarketEngine/pkg/logger"
)

const mirrorColumns = "item_id, datetime, order_type, subtype, mod_rank, volume, min_price, max_price, " +
	"open_price, closed_price, avg_price, wa_price, median, moving_avg, donch_top, donch_bot, loaded_at"

// ClickHouseMirror copies committed statistics into a ReplacingMergeTree so
// reloads collapse onto the same natural key.
type ClickHouseMirror struct {
	client *pkgch.Client
	opts   MirrorOptions
	logger *xlogger.Logger
	now    func() time.Time
}

// MirrorOptions names the mirror table and how it is written.
type MirrorOptions struct {
	Table     string
	BatchSize int
	// Retention drops rows whose datetime is older than this. Zero keeps
	// everything.
	Retention time.Duration
}

func (o MirrorOptions) withDefaults() MirrorOptions {
	if o.Table == "" {
		o.Table = "item_statistics"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5000
	}
	return o
}

// NewClickHouseMirror creates a mirror writing to opts.Table.
func NewClickHouseMirror(client *pkgch.Client, opts MirrorOptions, logger *xlogger.Logger) *ClickHouseMirror {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ClickHouseMirror{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MirrorSchema returns the DDL for the mirror table.
func MirrorSchema(opts MirrorOptions) []string {
	opts = opts.withDefaults()
	ttl := ""
	// TTL granularity is whole days since datetime is a Date.
	if days := int(opts.Retention.Hours() / 24); days > 0 {
		ttl = fmt.Sprintf("\nTTL datetime + INTERVAL %d DAY", days)
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    item_id      String,
    datetime     Date,
    order_type   LowCardinality(String),
    subtype      LowCardinality(String),
    mod_rank     Int16,
    volume       Float64,
    min_price    Float64,
    max_price    Float64,
    open_price   Nullable(Float64),
    closed_price Nullable(Float64),
    avg_price    Float64,
    wa_price     Nullable(Float64),
    median       Nullable(Float64),
    moving_avg   Nullable(Float64),
    donch_top    Nullable(Float64),
    donch_bot    Nullable(Float64),
    loaded_at    DateTime
) ENGINE = ReplacingMergeTree(loaded_at)
PARTITION BY toYYYYMM(datetime)
ORDER BY (item_id, datetime, order_type, subtype, mod_rank)%s`, opts.Table, ttl),
	}
}

// Init creates the mirror table.
func (m *ClickHouseMirror) Init(ctx context.Context) error {
	return m.client.InitSchema(ctx, MirrorSchema(m.opts))
}

// MirrorStatistics inserts records in blocks of BatchSize.
func (m *ClickHouseMirror) MirrorStatistics(ctx context.Context, records []models.StatisticRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	query := fmt.Sprintf("INSERT INTO %s (%s)", m.opts.Table, mirrorColumns)
	loadedAt := m.now()

	for from := 0; from < len(records); from += m.opts.BatchSize {
		to := from + m.opts.BatchSize
		if to > len(records) {
			to = len(records)
		}
		rows := make([][]interface{}, 0, to-from)
		for _, rec := range records[from:to] {
			rows = append(rows, mirrorRow(rec, loadedAt))
		}
		if err := m.client.InsertBatch(ctx, query, rows); err != nil {
			return fmt.Errorf("mirror statistics %d-%d: %w", from, to, err)
		}
	}
	m.logger.Debug("clickhouse mirror written",
		xlogger.String("table", m.opts.Table),
		xlogger.Int("records", len(records)),
		xlogger.Duration("took", time.Since(start)),
	)
	return nil
}

func mirrorRow(rec models.StatisticRecord, loadedAt time.Time) []interface{} {
	row := newStatisticRow(rec)
	return []interface{}{
		row.ItemID,
		row.Datetime,
		row.OrderType,
		*row.SubType,
		int16(*row.ModRank),
		row.Volume,
		row.MinPrice,
		row.MaxPrice,
		row.OpenPrice,
		row.ClosedPrice,
		row.AvgPrice,
		row.WAPrice,
		row.Median,
		row.MovingAvg,
		row.DonchTop,
		row.DonchBot,
		loadedAt,
	}
}

var _ domrepo.StatisticsMirror = (*ClickHouseMirror)(nil)
