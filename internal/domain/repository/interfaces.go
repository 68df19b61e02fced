package repository

import (
	"context"
	"time"

	"MarketEngine/internal/domain/models"
)

// Limiter bounds the outbound request rate shared by every fetch.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Fetcher is the cached, rate-limited, retrying HTTP primitive.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	GetJSON(ctx context.Context, url string, headers map[string]string, dest interface{}) error
}

// ArtifactStore holds one JSON bundle per aggregated date plus side files.
type ArtifactStore interface {
	Exists(ctx context.Context, date string) (bool, error)
	List(ctx context.Context) ([]string, error) // ascending dates
	Read(ctx context.Context, date string) (models.DayBundle, error)
	CreateIfAbsent(ctx context.Context, date string, bundle models.DayBundle) (bool, error)
	WriteSide(ctx context.Context, name string, v interface{}) error
	ReadSide(ctx context.Context, name string, v interface{}) error
}

// StoreTx is the write surface available inside one store transaction.
type StoreTx interface {
	InsertStatistics(ctx context.Context, records []models.StatisticRecord, columns []string) (int64, error)
	UpsertItems(ctx context.Context, items []models.Item) error
	UpsertSetMembership(ctx context.Context, rows []models.SetMembership) error
	UpsertSubtypes(ctx context.Context, rows []models.ItemSubtype) (int64, error)
	UpsertModRanks(ctx context.Context, rows []models.ItemModRank) (int64, error)
	SetItemTypes(ctx context.Context, types map[string]string) (int64, error)
}

// StatisticsStore is the relational store behind the persistence loader.
type StatisticsStore interface {
	Checkpoint(ctx context.Context) (time.Time, bool, error)
	CountStatistics(ctx context.Context) (int64, error)
	UnclassifiedItems(ctx context.Context) ([]models.Item, error)
	WithinTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// ItemStore persists the catalog and operator-managed aliases.
type ItemStore interface {
	Items(ctx context.Context) ([]models.Item, error)
	WordAliases(ctx context.Context) ([]models.WordAlias, error)
	AddItemAlias(ctx context.Context, itemID, alias string) error
	RemoveItemAlias(ctx context.Context, alias string) error
	AddWordAlias(ctx context.Context, word, alias string) error
}

// StatisticsMirror receives committed statistics for analytic queries.
type StatisticsMirror interface {
	MirrorStatistics(ctx context.Context, records []models.StatisticRecord) error
}

// EventPublisher announces pipeline progress to other processes.
type EventPublisher interface {
	PublishArtifacts(ctx context.Context, ev models.ArtifactsEvent) error
	PublishLoaded(ctx context.Context, ev models.LoadedEvent) error
	Close() error
}

// Metrics records pipeline telemetry.
type Metrics interface {
	RecordFetch(result string)
	RecordRecords(stage string, n int)
	RecordCheckpoint(day time.Time)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
