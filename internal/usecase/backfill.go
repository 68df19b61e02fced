package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/resolver"
	xlogger "MarketEngine/pkg/logger"
)

// BackfillReport summarizes one mirror backfill.
type BackfillReport struct {
	Listed  int
	Missing []string
	Written []string
	Failed  []string
}

// Backfiller copies per-date history the mirror has and the artifact store
// lacks, so a fresh deployment does not start with only 90 days.
type Backfiller struct {
	mirror          MirrorSource
	resolver        *resolver.Resolver
	artifacts       domrepo.ArtifactStore
	events          domrepo.EventPublisher
	metrics         domrepo.Metrics
	logger          *xlogger.Logger
	platform        string
	translationFile string
	workers         int
}

func NewBackfiller(
	mirror MirrorSource,
	res *resolver.Resolver,
	artifacts domrepo.ArtifactStore,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	platform string,
	translationFile string,
) *Backfiller {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &Backfiller{
		mirror:          mirror,
		resolver:        res,
		artifacts:       artifacts,
		events:          events,
		metrics:         metrics,
		logger:          logger.With("component", "backfill"),
		platform:        platform,
		translationFile: translationFile,
		workers:         8,
	}
}

// Run lists the mirror history, fetches the missing dates and writes them
// create-if-absent. A failed date is logged and retried on the next run.
func (b *Backfiller) Run(ctx context.Context) (*BackfillReport, error) {
	start := time.Now()
	listed, err := b.mirror.HistoryDates(ctx)
	if err != nil {
		b.metrics.RecordError("mirror_listing")
		return nil, fmt.Errorf("list mirror history: %w", err)
	}
	have, err := b.artifacts.List(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(have))
	for _, d := range have {
		existing[d] = true
	}

	report := &BackfillReport{Listed: len(listed)}
	for _, d := range listed {
		if !existing[d] {
			report.Missing = append(report.Missing, d)
		}
	}
	if len(report.Missing) == 0 {
		b.logger.Info("artifacts up to date", xlogger.Int("listed", len(listed)))
		return report, nil
	}
	b.prepareResolver(ctx)

	written := make([]bool, len(report.Missing))
	failed := make([]bool, len(report.Missing))
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	for i, date := range report.Missing {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(i int, date string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			ok, err := b.backfillDate(ctx, date)
			if err != nil {
				b.metrics.RecordError("backfill_date")
				b.logger.Warn("backfill failed", xlogger.String("date", date), xlogger.Error(err))
				failed[i] = true
				return
			}
			written[i] = ok
		}(i, date)
	}
	wg.Wait()

	for i, d := range report.Missing {
		if written[i] {
			report.Written = append(report.Written, d)
		}
		if failed[i] {
			report.Failed = append(report.Failed, d)
		}
	}
	b.logger.Info("backfill finished",
		xlogger.Int("listed", report.Listed),
		xlogger.Int("missing", len(report.Missing)),
		xlogger.Int("written", len(report.Written)),
		xlogger.Int("failed", len(report.Failed)),
		xlogger.Duration("took", time.Since(start)),
	)
	announce(ctx, b.events, b.metrics, b.logger, models.ArtifactsEvent{
		Source:   "mirror",
		Platform: b.platform,
		Dates:    report.Written,
	})
	return report, nil
}

func (b *Backfiller) prepareResolver(ctx context.Context) {
	if t, err := loadTranslations(ctx, b.mirror, b.translationFile); err != nil {
		b.logger.Warn("translation table unavailable", xlogger.Error(err))
	} else {
		b.resolver.SetTranslations(t)
	}
	if ids, err := b.mirror.ItemIDs(ctx); err != nil {
		b.logger.Warn("mirror item ids unavailable", xlogger.Error(err))
	} else {
		b.resolver.AddIDs(ids)
	}
}

func (b *Backfiller) backfillDate(ctx context.Context, date string) (bool, error) {
	raw, err := b.mirror.History(ctx, date)
	if err != nil {
		return false, err
	}
	bundle := fixNames(raw, b.resolver)
	b.metrics.RecordRecords("backfilled", bundle.Len())
	return b.artifacts.CreateIfAbsent(ctx, date, bundle)
}

// fixNames renames historical items to their current names and stamps ids
// on records that lack one or whose name changed.
func fixNames(raw models.DayBundle, res *resolver.Resolver) models.DayBundle {
	out := make(models.DayBundle, len(raw))
	for name, recs := range raw {
		current := res.Translate(name)
		renamed := current != name
		for _, rec := range recs {
			rec.Normalize()
			if rec.ItemID == "" || renamed {
				rec.ItemID = res.Resolve(current)
			}
			out[current] = append(out[current], rec)
		}
	}
	return out
}
