package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/repository"
	"MarketEngine/internal/resolver"
	"MarketEngine/internal/service/market"
	"MarketEngine/pkg/database"
)

type fakeMarket struct {
	items    []models.Item
	stats    map[string]*market.Statistics
	itemsErr error
}

func (m *fakeMarket) Platform() string { return "pc" }

func (m *fakeMarket) Items(context.Context) ([]models.Item, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	out := make([]models.Item, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *fakeMarket) Statistics(_ context.Context, urlName string) (*market.Statistics, error) {
	s, ok := m.stats[urlName]
	if !ok {
		return nil, fmt.Errorf("statistics %s: status 500", urlName)
	}
	return s, nil
}

type fakeMirror struct {
	dates        []string
	history      map[string]models.DayBundle
	ids          map[string]string
	translations models.TranslationTable
}

func (m *fakeMirror) HistoryDates(context.Context) ([]string, error) { return m.dates, nil }

func (m *fakeMirror) History(_ context.Context, date string) (models.DayBundle, error) {
	b, ok := m.history[date]
	if !ok {
		return nil, errors.New("not found")
	}
	// callers must not see each other's mutations
	out := make(models.DayBundle, len(b))
	for k, v := range b {
		out[k] = append([]models.StatisticRecord(nil), v...)
	}
	return out, nil
}

func (m *fakeMirror) ItemIDs(context.Context) (map[string]string, error) { return m.ids, nil }

func (m *fakeMirror) Translations(context.Context) (models.TranslationTable, error) {
	return m.translations, nil
}

type recordingEvents struct {
	mu        sync.Mutex
	artifacts []models.ArtifactsEvent
	loaded    []models.LoadedEvent
}

func (e *recordingEvents) PublishArtifacts(_ context.Context, ev models.ArtifactsEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.artifacts = append(e.artifacts, ev)
	return nil
}

func (e *recordingEvents) PublishLoaded(_ context.Context, ev models.LoadedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = append(e.loaded, ev)
	return nil
}

func (e *recordingEvents) Close() error { return nil }

type recordingMirror struct {
	records int
}

func (m *recordingMirror) MirrorStatistics(_ context.Context, recs []models.StatisticRecord) error {
	m.records += len(recs)
	return nil
}

type mapClassifier map[string]string

func (c mapClassifier) Classify(name string) string { return c[name] }

func (c mapClassifier) LoadClassifier(context.Context) (Classifier, error) { return c, nil }

// failingStore fails the statistics insert of one date after writing it,
// so a rollback is observable.
type failingStore struct {
	*repository.GormStore
	failDate string
}

func (s *failingStore) WithinTx(ctx context.Context, fn func(tx domrepo.StoreTx) error) error {
	return s.GormStore.WithinTx(ctx, func(tx domrepo.StoreTx) error {
		return fn(&failingTx{StoreTx: tx, failDate: s.failDate})
	})
}

type failingTx struct {
	domrepo.StoreTx
	failDate string
}

func (t *failingTx) InsertStatistics(ctx context.Context, recs []models.StatisticRecord, cols []string) (int64, error) {
	n, err := t.StoreTx.InsertStatistics(ctx, recs, cols)
	if err != nil {
		return n, err
	}
	for _, r := range recs {
		if r.Date() == t.failDate {
			return n, errors.New("connection reset")
		}
	}
	return n, nil
}

func newStore(t *testing.T) *repository.GormStore {
	t.Helper()
	db, err := database.Open(
		database.WithDriver(database.DriverSQLite),
		database.WithDSN(filepath.Join(t.TempDir(), "store.db")),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	s := repository.NewGormStore(db, repository.WithBatchSize(3))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newArtifacts(t *testing.T) *repository.FileArtifactStore {
	t.Helper()
	a, err := repository.NewFileArtifactStore(t.TempDir(), "pc")
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	return a
}

func newResolver(t *testing.T, store domrepo.ItemStore) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(store, 64)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return r
}

func stat(date, orderType string) models.StatisticRecord {
	d, _ := models.ParseDate(date)
	return models.StatisticRecord{Datetime: d, OrderType: orderType, Volume: 4, MinPrice: 10, MaxPrice: 20, AvgPrice: 15}
}

func ptr[T any](v T) *T { return &v }
