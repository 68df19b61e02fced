package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/resolver"
	xlogger "MarketEngine/pkg/logger"
)

// AggregateResult is one aggregation pass: records bucketed by date and
// display name, plus the per-item side tables.
type AggregateResult struct {
	Buckets map[string]models.DayBundle
	Info    map[string]models.ItemInfo // by item id
	Items   []models.Item
	Failed  []string // url names whose statistics could not be fetched
	Records int
}

// Dates returns the bucket dates in ascending order.
func (r *AggregateResult) Dates() []string {
	dates := make([]string, 0, len(r.Buckets))
	for d := range r.Buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Aggregator fans out per-item statistics fetches and writes the per-date
// artifacts.
type Aggregator struct {
	market          MarketSource
	mirror          MirrorSource
	resolver        *resolver.Resolver
	artifacts       domrepo.ArtifactStore
	events          domrepo.EventPublisher
	metrics         domrepo.Metrics
	logger          *xlogger.Logger
	translationFile string
}

// NewAggregator creates an Aggregator. mirror may be nil.
func NewAggregator(
	market MarketSource,
	mirror MirrorSource,
	res *resolver.Resolver,
	artifacts domrepo.ArtifactStore,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	translationFile string,
) *Aggregator {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &Aggregator{
		market:          market,
		mirror:          mirror,
		resolver:        res,
		artifacts:       artifacts,
		events:          events,
		metrics:         metrics,
		logger:          logger.With("component", "aggregator"),
		translationFile: translationFile,
	}
}

// Run fetches the catalog and every item's statistics. Per-item failures
// are logged and skipped; a catalog failure aborts the run.
func (a *Aggregator) Run(ctx context.Context) (*AggregateResult, error) {
	start := time.Now()
	items, err := a.market.Items(ctx)
	if err != nil {
		a.metrics.RecordError("catalog")
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	a.prepareResolver(ctx, items)

	res := &AggregateResult{
		Buckets: make(map[string]models.DayBundle),
		Info:    make(map[string]models.ItemInfo, len(items)),
	}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := range items {
		wg.Add(1)
		go func(item *models.Item) {
			defer wg.Done()
			stats, err := a.market.Statistics(ctx, item.URLName)
			if err != nil {
				a.metrics.RecordError("item_statistics")
				a.logger.Warn("skipping item statistics",
					xlogger.String("item", item.URLName),
					xlogger.Error(err),
				)
				mu.Lock()
				res.Failed = append(res.Failed, item.URLName)
				mu.Unlock()
				return
			}

			name := a.resolver.Translate(item.Name)
			id := a.resolver.Resolve(item.Name)
			info := stats.Info
			if info.ItemID == "" {
				info.ItemID = item.ID
			}

			mu.Lock()
			defer mu.Unlock()
			for _, rec := range stats.Records() {
				rec.Normalize()
				rec.ItemID = id
				date := rec.Date()
				bundle, ok := res.Buckets[date]
				if !ok {
					bundle = make(models.DayBundle)
					res.Buckets[date] = bundle
				}
				bundle[name] = append(bundle[name], rec)
				res.Records++
			}
			res.Info[info.ItemID] = info
			if info.ModMaxRank != nil {
				item.MaxRank = info.ModMaxRank
			}
		}(&items[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	sort.Strings(res.Failed)
	res.Items = items

	a.metrics.RecordRecords("aggregated", res.Records)
	a.metrics.RecordLatency("aggregate", time.Since(start).Seconds())
	a.logger.Info("aggregation finished",
		xlogger.Int("items", len(items)),
		xlogger.Int("failed", len(res.Failed)),
		xlogger.Int("dates", len(res.Buckets)),
		xlogger.Int("records", res.Records),
		xlogger.Duration("took", time.Since(start)),
	)
	return res, nil
}

// prepareResolver loads translations and the name to id tables. The mirror
// parts are optional.
func (a *Aggregator) prepareResolver(ctx context.Context, items []models.Item) {
	t, err := loadTranslations(ctx, a.mirror, a.translationFile)
	if err != nil {
		a.logger.Warn("translation table unavailable", xlogger.Error(err))
	} else {
		a.resolver.SetTranslations(t)
	}

	ids := make(map[string]string, len(items))
	for _, it := range items {
		ids[it.Name] = it.ID
	}
	a.resolver.AddIDs(ids)

	if a.mirror == nil {
		return
	}
	mirrorIDs, err := a.mirror.ItemIDs(ctx)
	if err != nil {
		a.logger.Warn("mirror item ids unavailable", xlogger.Error(err))
		return
	}
	a.resolver.AddIDs(mirrorIDs)
}

// WriteArtifacts writes every date bucket that has no artifact yet and
// refreshes the side files. It returns the dates newly written.
func (a *Aggregator) WriteArtifacts(ctx context.Context, res *AggregateResult) ([]string, error) {
	var written []string
	for _, date := range res.Dates() {
		ok, err := a.artifacts.CreateIfAbsent(ctx, date, res.Buckets[date])
		if err != nil {
			return written, fmt.Errorf("write artifact %s: %w", date, err)
		}
		if ok {
			written = append(written, date)
		}
	}

	sides := []struct {
		name string
		v    interface{}
	}{
		{SideItemInfo, res.Info},
		{SideItems, res.Items},
		{SideItemIDs, a.resolver.IDs()},
	}
	for _, s := range sides {
		if err := a.artifacts.WriteSide(ctx, s.name, s.v); err != nil {
			return written, err
		}
	}

	a.logger.Info("artifacts written",
		xlogger.Int("new", len(written)),
		xlogger.Int("dates", len(res.Buckets)),
	)
	announce(ctx, a.events, a.metrics, a.logger, models.ArtifactsEvent{
		Source:   "market",
		Platform: a.market.Platform(),
		Dates:    written,
	})
	return written, nil
}

// announce publishes ev when it lists any date. Publishing is best effort.
func announce(ctx context.Context, events domrepo.EventPublisher, metrics domrepo.Metrics, logger *xlogger.Logger, ev models.ArtifactsEvent) {
	if events == nil || len(ev.Dates) == 0 {
		return
	}
	ev.RunID = uuid.NewString()
	ev.At = time.Now().UTC()
	if err := events.PublishArtifacts(ctx, ev); err != nil {
		metrics.RecordError("publish")
		logger.Error("failed to publish artifacts event", xlogger.String("source", ev.Source), xlogger.Error(err))
	}
}
