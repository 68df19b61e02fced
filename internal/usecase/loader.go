package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/resolver"
	xlogger "MarketEngine/pkg/logger"
	"MarketEngine/pkg/util"
)

// CommitMode selects the transaction boundary of a load.
type CommitMode string

const (
	// CommitRun loads every pending date in one transaction.
	CommitRun CommitMode = "run"
	// CommitDate commits each date on its own so an interrupted run keeps
	// the dates it finished.
	CommitDate CommitMode = "date"
)

type LoadOptions struct {
	FullReload bool
	CommitMode CommitMode
}

// LoadReport describes a load. Checkpoint is the day the load started
// after, empty for a first or full load.
type LoadReport struct {
	RunID      string   `json:"run_id"`
	Checkpoint string   `json:"checkpoint,omitempty"`
	Dates      []string `json:"dates"`
	Records    int      `json:"records"`
	Inserted   int64    `json:"inserted"`
	Subtypes   int64    `json:"subtypes"`
	ModRanks   int64    `json:"mod_ranks"`
	Classified int64    `json:"classified"`
}

// Loader moves artifacts past the checkpoint into the relational store.
// Loads are serialized: the store has a single writer.
type Loader struct {
	store      domrepo.StatisticsStore
	artifacts  domrepo.ArtifactStore
	resolver   *resolver.Resolver
	classifier ClassifierLoader
	mirror     domrepo.StatisticsMirror
	events     domrepo.EventPublisher
	metrics    domrepo.Metrics
	logger     *xlogger.Logger
	mode       CommitMode

	mu sync.Mutex
}

// NewLoader creates a Loader. classifier and mirror may be nil.
func NewLoader(
	store domrepo.StatisticsStore,
	artifacts domrepo.ArtifactStore,
	res *resolver.Resolver,
	classifier ClassifierLoader,
	mirror domrepo.StatisticsMirror,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	mode CommitMode,
) *Loader {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if mode == "" {
		mode = CommitRun
	}
	return &Loader{
		store:      store,
		artifacts:  artifacts,
		resolver:   res,
		classifier: classifier,
		mirror:     mirror,
		events:     events,
		metrics:    metrics,
		logger:     logger.With("component", "loader"),
		mode:       mode,
	}
}

// Mode returns the configured commit mode.
func (l *Loader) Mode() CommitMode { return l.mode }

type dayRecords struct {
	date    string
	records []models.StatisticRecord
	names   map[string]string // item id to the name it was filed under
}

// Load inserts every artifact newer than the checkpoint, or every artifact
// with FullReload. Duplicates are skipped by the store so reloading is
// harmless. A failed statistics transaction returns *PersistenceError and
// leaves the checkpoint where the last commit put it.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*LoadReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	mode := opts.CommitMode
	if mode == "" {
		mode = l.mode
	}
	report := &LoadReport{RunID: uuid.NewString()}

	cp, ok, err := l.store.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	if ok && !opts.FullReload {
		report.Checkpoint = cp.Format(models.DateLayout)
	}
	all, err := l.artifacts.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := util.DatesAfter(all, report.Checkpoint)
	if len(pending) == 0 {
		l.logger.Info("nothing to load", xlogger.String("checkpoint", report.Checkpoint))
		return report, nil
	}

	days, err := l.readDays(ctx, pending)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		report.Records += len(d.records)
	}
	catalog, sets := l.catalog(ctx, days)

	var committed []models.StatisticRecord
	switch mode {
	case CommitDate:
		committed, err = l.commitPerDate(ctx, days, catalog, sets, report)
	default:
		committed, err = l.commitRun(ctx, days, catalog, sets, report)
	}
	if err != nil {
		l.metrics.RecordError("persist")
		l.logger.Error("load rolled back",
			xlogger.String("mode", string(mode)),
			xlogger.Strings("committed", report.Dates),
			xlogger.Error(err),
		)
		if len(committed) > 0 {
			l.afterCommit(ctx, committed, report)
		}
		return report, err
	}

	if err := l.derive(ctx, committed, report); err != nil {
		l.metrics.RecordError("derive")
		return report, err
	}
	l.afterCommit(ctx, committed, report)

	l.metrics.RecordRecords("loaded", int(report.Inserted))
	l.metrics.RecordLatency("load", time.Since(start).Seconds())
	l.logger.Info("load finished",
		xlogger.String("run_id", report.RunID),
		xlogger.String("checkpoint", report.Checkpoint),
		xlogger.Int("dates", len(report.Dates)),
		xlogger.Int("records", report.Records),
		xlogger.Int64("inserted", report.Inserted),
		xlogger.Duration("took", time.Since(start)),
	)
	return report, nil
}

// readDays reads and flattens the artifacts of dates. Records get the
// canonical order type and an item id.
func (l *Loader) readDays(ctx context.Context, dates []string) ([]dayRecords, error) {
	days := make([]dayRecords, 0, len(dates))
	for _, date := range dates {
		bundle, err := l.artifacts.Read(ctx, date)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(bundle))
		for name := range bundle {
			names = append(names, name)
		}
		sort.Strings(names)

		d := dayRecords{
			date:    date,
			records: make([]models.StatisticRecord, 0, bundle.Len()),
			names:   make(map[string]string, len(bundle)),
		}
		for _, name := range names {
			for _, rec := range bundle[name] {
				rec.Normalize()
				if rec.ItemID == "" {
					rec.ItemID = l.resolver.Resolve(name)
				}
				if _, ok := d.names[rec.ItemID]; !ok {
					d.names[rec.ItemID] = name
				}
				d.records = append(d.records, rec)
			}
		}
		days = append(days, d)
	}
	return days, nil
}

// catalog assembles the items and set memberships to upsert: the saved
// catalog, plus synthesized entries for ids only seen in the records.
func (l *Loader) catalog(ctx context.Context, days []dayRecords) ([]models.Item, []models.SetMembership) {
	var items []models.Item
	if err := l.artifacts.ReadSide(ctx, SideItems, &items); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("catalog side file unreadable", xlogger.Error(err))
	}
	info := make(map[string]models.ItemInfo)
	if err := l.artifacts.ReadSide(ctx, SideItemInfo, &info); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("item info side file unreadable", xlogger.Error(err))
	}

	known := make(map[string]bool, len(items))
	for i := range items {
		known[items[i].ID] = true
		if inf, ok := info[items[i].ID]; ok && inf.ModMaxRank != nil {
			items[i].MaxRank = inf.ModMaxRank
		}
	}
	names := invert(l.resolver.IDs())
	for _, d := range days {
		for _, rec := range d.records {
			if known[rec.ItemID] {
				continue
			}
			known[rec.ItemID] = true
			name := names[rec.ItemID]
			if name == "" {
				name = l.resolver.Translate(d.names[rec.ItemID])
			}
			items = append(items, models.Item{ID: rec.ItemID, Name: name})
		}
	}

	ids := make([]string, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var sets []models.SetMembership
	for _, id := range ids {
		for _, part := range info[id].SetItems {
			sets = append(sets, models.SetMembership{ItemID: part, SetID: id})
		}
	}
	return items, sets
}

func (l *Loader) commitRun(ctx context.Context, days []dayRecords, items []models.Item, sets []models.SetMembership, report *LoadReport) ([]models.StatisticRecord, error) {
	var flat []models.StatisticRecord
	for _, d := range days {
		flat = append(flat, d.records...)
	}
	columns := models.StatisticColumns(flat)

	var inserted int64
	err := l.store.WithinTx(ctx, func(tx domrepo.StoreTx) error {
		if err := tx.UpsertItems(ctx, items); err != nil {
			return err
		}
		if err := tx.UpsertSetMembership(ctx, sets); err != nil {
			return err
		}
		for _, d := range days {
			n, err := tx.InsertStatistics(ctx, d.records, columns)
			if err != nil {
				return fmt.Errorf("date %s: %w", d.date, err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Stage: StageStatistics, Dates: datesOf(days), Err: err}
	}
	report.Dates = datesOf(days)
	report.Inserted = inserted
	return flat, nil
}

func (l *Loader) commitPerDate(ctx context.Context, days []dayRecords, items []models.Item, sets []models.SetMembership, report *LoadReport) ([]models.StatisticRecord, error) {
	err := l.store.WithinTx(ctx, func(tx domrepo.StoreTx) error {
		if err := tx.UpsertItems(ctx, items); err != nil {
			return err
		}
		return tx.UpsertSetMembership(ctx, sets)
	})
	if err != nil {
		return nil, &PersistenceError{Stage: StageCatalog, Dates: datesOf(days), Err: err}
	}

	var committed []models.StatisticRecord
	for i, d := range days {
		var n int64
		err := l.store.WithinTx(ctx, func(tx domrepo.StoreTx) error {
			var err error
			n, err = tx.InsertStatistics(ctx, d.records, models.StatisticColumns(d.records))
			return err
		})
		if err != nil {
			return committed, &PersistenceError{Stage: StageStatistics, Dates: datesOf(days[i:]), Err: err}
		}
		report.Dates = append(report.Dates, d.date)
		report.Inserted += n
		committed = append(committed, d.records...)
		if day, err := models.ParseDate(d.date); err == nil {
			l.metrics.RecordCheckpoint(day)
		}
	}
	return committed, nil
}

// derive refreshes the tables computed from committed statistics in their
// own transaction.
func (l *Loader) derive(ctx context.Context, records []models.StatisticRecord, report *LoadReport) error {
	subtypes, ranks := distinctDiscriminators(records)

	unclassified, err := l.store.UnclassifiedItems(ctx)
	if err != nil {
		return &PersistenceError{Stage: StageDerive, Err: err}
	}
	types := l.classify(ctx, unclassified)

	err = l.store.WithinTx(ctx, func(tx domrepo.StoreTx) error {
		var err error
		if report.Subtypes, err = tx.UpsertSubtypes(ctx, subtypes); err != nil {
			return err
		}
		if report.ModRanks, err = tx.UpsertModRanks(ctx, ranks); err != nil {
			return err
		}
		report.Classified, err = tx.SetItemTypes(ctx, types)
		return err
	})
	if err != nil {
		report.Subtypes, report.ModRanks, report.Classified = 0, 0, 0
		return &PersistenceError{Stage: StageDerive, Err: err}
	}
	return nil
}

// classify maps unclassified item ids to types. The manifest is only
// fetched when there is something to classify; failing to load it leaves
// the items for the next run.
func (l *Loader) classify(ctx context.Context, items []models.Item) map[string]string {
	types := make(map[string]string)
	if len(items) == 0 || l.classifier == nil {
		return types
	}
	c, err := l.classifier.LoadClassifier(ctx)
	if err != nil {
		l.metrics.RecordError("manifest")
		l.logger.Warn("classification skipped", xlogger.Int("items", len(items)), xlogger.Error(err))
		return types
	}
	for _, it := range items {
		if t := c.Classify(it.Name); t != "" {
			types[it.ID] = t
		}
	}
	return types
}

// afterCommit runs the best-effort steps that follow a commit.
func (l *Loader) afterCommit(ctx context.Context, committed []models.StatisticRecord, report *LoadReport) {
	if cp, ok, err := l.store.Checkpoint(ctx); err == nil && ok {
		l.metrics.RecordCheckpoint(cp)
	}
	if l.mirror != nil {
		if err := l.mirror.MirrorStatistics(ctx, committed); err != nil {
			l.metrics.RecordError("mirror")
			l.logger.Error("clickhouse mirror failed", xlogger.Int("records", len(committed)), xlogger.Error(err))
		}
	}
	if err := l.resolver.Reload(ctx); err != nil {
		l.logger.Warn("resolver reload failed", xlogger.Error(err))
	}
	if l.events == nil || len(report.Dates) == 0 {
		return
	}
	ev := models.LoadedEvent{
		RunID:      report.RunID,
		Checkpoint: report.Checkpoint,
		Dates:      report.Dates,
		Inserted:   report.Inserted,
		At:         time.Now().UTC(),
	}
	if err := l.events.PublishLoaded(ctx, ev); err != nil {
		l.metrics.RecordError("publish")
		l.logger.Error("failed to publish loaded event", xlogger.Error(err))
	}
}

func distinctDiscriminators(records []models.StatisticRecord) ([]models.ItemSubtype, []models.ItemModRank) {
	seenSub := make(map[models.ItemSubtype]bool)
	seenRank := make(map[models.ItemModRank]bool)
	var subs []models.ItemSubtype
	var ranks []models.ItemModRank
	for _, r := range records {
		if r.SubType != nil && *r.SubType != "" {
			k := models.ItemSubtype{ItemID: r.ItemID, SubType: *r.SubType}
			if !seenSub[k] {
				seenSub[k] = true
				subs = append(subs, k)
			}
		}
		if r.ModRank != nil {
			k := models.ItemModRank{ItemID: r.ItemID, ModRank: *r.ModRank}
			if !seenRank[k] {
				seenRank[k] = true
				ranks = append(ranks, k)
			}
		}
	}
	return subs, ranks
}

func datesOf(days []dayRecords) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.date
	}
	return out
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if prev, ok := out[v]; !ok || k < prev {
			out[v] = k
		}
	}
	return out
}
