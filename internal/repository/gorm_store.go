package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/pkg/database"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

const defaultBatchSize = 10000

// GormStore is the relational store. It serves the loader, the resolver and,
// when bound to a transaction, the StoreTx surface.
type GormStore struct {
	db        *gorm.DB
	batchSize int
}

// StoreOption configures GormStore.
type StoreOption func(*GormStore)

// WithBatchSize sets how many statistics go into one INSERT.
func WithBatchSize(n int) StoreOption {
	return func(s *GormStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB, opts ...StoreOption) *GormStore {
	s := &GormStore{db: db, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates every table and index.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(tables()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Checkpoint returns the newest statistics day. ok is false on an empty store.
func (s *GormStore) Checkpoint(ctx context.Context) (time.Time, bool, error) {
	var row statisticRow
	err := s.db.WithContext(ctx).
		Select("datetime").
		Order("datetime DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("checkpoint: %w", err)
	}
	return models.DayOf(row.Datetime), true, nil
}

func (s *GormStore) CountStatistics(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&statisticRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count statistics: %w", err)
	}
	return n, nil
}

// Statistics returns the stored records of one day, ordered by natural key.
func (s *GormStore) Statistics(ctx context.Context, day time.Time) ([]models.StatisticRecord, error) {
	var rows []statisticRow
	err := s.db.WithContext(ctx).
		Where("datetime = ?", models.DayOf(day)).
		Order("item_id, order_type, subtype, mod_rank").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	out := make([]models.StatisticRecord, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// UnclassifiedItems returns items whose category is still unknown.
func (s *GormStore) UnclassifiedItems(ctx context.Context) ([]models.Item, error) {
	var rows []itemRow
	err := s.db.WithContext(ctx).
		Where("item_type IS NULL OR item_type = ''").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("unclassified items: %w", err)
	}
	out := make([]models.Item, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// WithinTx runs fn in one transaction. A returned error rolls back all of
// fn's writes.
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx domrepo.StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, batchSize: s.batchSize})
	})
}

// InsertStatistics writes records in batches and skips natural-key
// duplicates. Columns outside columns take their database default. It
// returns the number of rows actually inserted.
func (s *GormStore) InsertStatistics(ctx context.Context, records []models.StatisticRecord, columns []string) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		columns = models.StatisticColumns(records)
	}
	batch := s.batchSize
	if limit := database.MaxParams(s.db) / len(columns); batch > limit {
		batch = limit
	}

	rows := make([]statisticRow, len(records))
	for i, rec := range records {
		if rec.ItemID == "" {
			return 0, fmt.Errorf("insert statistics: record %d has no item id", i)
		}
		rows[i] = newStatisticRow(rec)
	}

	var inserted int64
	db := s.db.WithContext(ctx)
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		res := db.Clauses(clause.OnConflict{DoNothing: true}).
			Select(columns).
			Create(&chunk)
		if res.Error != nil {
			return inserted, fmt.Errorf("insert statistics batch %d-%d: %w", start, end, res.Error)
		}
		inserted += res.RowsAffected
	}
	return inserted, nil
}

// UpsertItems inserts new items and refreshes the descriptive columns of
// existing ones. A classified type is never cleared.
func (s *GormStore) UpsertItems(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]itemRow, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		rows = append(rows, newItemRow(it))
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "url_name", "thumb", "max_rank"}),
		}).
		CreateInBatches(rows, s.batchSize).Error
	if err != nil {
		return fmt.Errorf("upsert items: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertSetMembership(ctx context.Context, rows []models.SetMembership) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([]setMembershipRow, len(rows))
	for i, r := range rows {
		out[i] = setMembershipRow{ItemID: r.ItemID, SetID: r.SetID}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(out, s.batchSize).Error
	if err != nil {
		return fmt.Errorf("upsert set membership: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertSubtypes(ctx context.Context, rows []models.ItemSubtype) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	out := make([]itemSubtypeRow, len(rows))
	for i, r := range rows {
		out[i] = itemSubtypeRow{ItemID: r.ItemID, SubType: r.SubType}
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(out, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert subtypes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) UpsertModRanks(ctx context.Context, rows []models.ItemModRank) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	out := make([]itemModRankRow, len(rows))
	for i, r := range rows {
		out[i] = itemModRankRow{ItemID: r.ItemID, ModRank: r.ModRank}
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(out, s.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert mod ranks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetItemTypes fills the category of items that have none yet.
func (s *GormStore) SetItemTypes(ctx context.Context, types map[string]string) (int64, error) {
	ids := make([]string, 0, len(types))
	for id := range types {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var updated int64
	db := s.db.WithContext(ctx)
	for _, id := range ids {
		res := db.Model(&itemRow{}).
			Where("id = ? AND (item_type IS NULL OR item_type = '')", id).
			Update("item_type", types[id])
		if res.Error != nil {
			return updated, fmt.Errorf("set item type %s: %w", id, res.Error)
		}
		updated += res.RowsAffected
	}
	return updated, nil
}

// Items returns the catalog with aliases attached, ordered by name.
func (s *GormStore) Items(ctx context.Context) ([]models.Item, error) {
	db := s.db.WithContext(ctx)
	var rows []itemRow
	if err := db.Order("name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	var aliases []itemAliasRow
	if err := db.Order("alias_key").Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("item aliases: %w", err)
	}
	byItem := make(map[string][]string, len(aliases))
	for _, a := range aliases {
		byItem[a.ItemID] = append(byItem[a.ItemID], a.Alias)
	}

	out := make([]models.Item, len(rows))
	for i, r := range rows {
		out[i] = r.model()
		out[i].Aliases = byItem[r.ID]
	}
	return out, nil
}

func (s *GormStore) WordAliases(ctx context.Context) ([]models.WordAlias, error) {
	var rows []wordAliasRow
	if err := s.db.WithContext(ctx).Order("word").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("word aliases: %w", err)
	}
	out := make([]models.WordAlias, len(rows))
	for i, r := range rows {
		out[i] = models.WordAlias{Word: r.Word, Alias: r.Alias}
	}
	return out, nil
}

// AddItemAlias attaches alias to itemID. Aliases compare case-insensitively.
func (s *GormStore) AddItemAlias(ctx context.Context, itemID, alias string) error {
	key := aliasKey(alias)
	if key == "" {
		return fmt.Errorf("add item alias: empty alias")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item itemRow
		err := tx.Select("id").Where("id = ?", itemID).Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("add item alias: %w", err)
		}

		var n int64
		if err := tx.Model(&itemAliasRow{}).Where("alias_key = ?", key).Count(&n).Error; err != nil {
			return fmt.Errorf("add item alias: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("alias %q: %w", alias, ErrDuplicate)
		}
		row := itemAliasRow{AliasKey: key, Alias: strings.TrimSpace(alias), ItemID: itemID}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("add item alias: %w", err)
		}
		return nil
	})
}

func (s *GormStore) RemoveItemAlias(ctx context.Context, alias string) error {
	res := s.db.WithContext(ctx).Where("alias_key = ?", aliasKey(alias)).Delete(&itemAliasRow{})
	if res.Error != nil {
		return fmt.Errorf("remove item alias: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alias %q: %w", alias, ErrNotFound)
	}
	return nil
}

// AddWordAlias stores word -> alias. Word aliases are append-only.
func (s *GormStore) AddWordAlias(ctx context.Context, word, alias string) error {
	word, alias = aliasKey(word), aliasKey(alias)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&wordAliasRow{Word: word, Alias: alias})
	if res.Error != nil {
		return fmt.Errorf("add word alias: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("word %q: %w", word, ErrDuplicate)
	}
	return nil
}

// SeedWordAliases inserts defaults that are not present yet.
func (s *GormStore) SeedWordAliases(ctx context.Context, aliases map[string]string) error {
	if len(aliases) == 0 {
		return nil
	}
	rows := make([]wordAliasRow, 0, len(aliases))
	for w, a := range aliases {
		rows = append(rows, wordAliasRow{Word: aliasKey(w), Alias: aliasKey(a)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Word < rows[j].Word })
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seed word aliases: %w", err)
	}
	return nil
}

var (
	_ domrepo.StatisticsStore = (*GormStore)(nil)
	_ domrepo.StoreTx         = (*GormStore)(nil)
	_ domrepo.ItemStore       = (*GormStore)(nil)
)
