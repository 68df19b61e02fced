package repository

import (
	"strings"
	"time"

	"MarketEngine/internal/domain/models"
)

// Sentinels stored for absent natural-key discriminators. NULLs would be
// distinct to the unique index and let duplicates through.
const (
	noSubType = ""
	noModRank = -1
)

type itemRow struct {
	ID      string  `gorm:"primaryKey;size:64"`
	Name    string  `gorm:"size:255;not null;index"`
	URLName string  `gorm:"column:url_name;size:255"`
	Thumb   string  `gorm:"size:512"`
	Type    *string `gorm:"column:item_type;size:64;index"`
	MaxRank *int    `gorm:"column:max_rank"`
}

func (itemRow) TableName() string { return "items" }

type itemAliasRow struct {
	AliasKey string `gorm:"column:alias_key;primaryKey;size:128"`
	Alias    string `gorm:"size:128;not null"`
	ItemID   string `gorm:"column:item_id;size:64;not null;index"`
}

func (itemAliasRow) TableName() string { return "item_aliases" }

type wordAliasRow struct {
	Word  string `gorm:"primaryKey;size:64"`
	Alias string `gorm:"size:64;not null"`
}

func (wordAliasRow) TableName() string { return "word_aliases" }

type statisticRow struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	ItemID      string    `gorm:"column:item_id;size:64;not null;uniqueIndex:idx_stat_natural_key,priority:1"`
	Datetime    time.Time `gorm:"column:datetime;not null;index;uniqueIndex:idx_stat_natural_key,priority:2"`
	OrderType   string    `gorm:"column:order_type;size:16;not null;uniqueIndex:idx_stat_natural_key,priority:3"`
	SubType     *string   `gorm:"column:subtype;size:64;not null;default:'';uniqueIndex:idx_stat_natural_key,priority:4"`
	ModRank     *int      `gorm:"column:mod_rank;not null;default:-1;uniqueIndex:idx_stat_natural_key,priority:5"`
	Volume      float64   `gorm:"column:volume"`
	MinPrice    float64   `gorm:"column:min_price"`
	MaxPrice    float64   `gorm:"column:max_price"`
	OpenPrice   *float64  `gorm:"column:open_price"`
	ClosedPrice *float64  `gorm:"column:closed_price"`
	AvgPrice    float64   `gorm:"column:avg_price"`
	WAPrice     *float64  `gorm:"column:wa_price"`
	Median      *float64  `gorm:"column:median"`
	MovingAvg   *float64  `gorm:"column:moving_avg"`
	DonchTop    *float64  `gorm:"column:donch_top"`
	DonchBot    *float64  `gorm:"column:donch_bot"`
}

func (statisticRow) TableName() string { return "item_statistics" }

type setMembershipRow struct {
	ItemID string `gorm:"column:item_id;primaryKey;size:64"`
	SetID  string `gorm:"column:set_id;primaryKey;size:64;index"`
}

func (setMembershipRow) TableName() string { return "item_sets" }

type itemSubtypeRow struct {
	ItemID  string `gorm:"column:item_id;primaryKey;size:64"`
	SubType string `gorm:"column:subtype;primaryKey;size:64"`
}

func (itemSubtypeRow) TableName() string { return "item_subtypes" }

type itemModRankRow struct {
	ItemID  string `gorm:"column:item_id;primaryKey;size:64"`
	ModRank int    `gorm:"column:mod_rank;primaryKey;autoIncrement:false"`
}

func (itemModRankRow) TableName() string { return "item_mod_ranks" }

func tables() []interface{} {
	return []interface{}{
		&itemRow{},
		&itemAliasRow{},
		&wordAliasRow{},
		&statisticRow{},
		&setMembershipRow{},
		&itemSubtypeRow{},
		&itemModRankRow{},
	}
}

func newItemRow(it models.Item) itemRow {
	row := itemRow{
		ID:      it.ID,
		Name:    it.Name,
		URLName: it.URLName,
		Thumb:   it.Thumb,
		MaxRank: it.MaxRank,
	}
	if it.Type != "" {
		t := it.Type
		row.Type = &t
	}
	return row
}

func (r itemRow) model() models.Item {
	it := models.Item{
		ID:      r.ID,
		Name:    r.Name,
		URLName: r.URLName,
		Thumb:   r.Thumb,
		MaxRank: r.MaxRank,
	}
	if r.Type != nil {
		it.Type = *r.Type
	}
	return it
}

func newStatisticRow(rec models.StatisticRecord) statisticRow {
	rec.Normalize()
	sub, rank := noSubType, noModRank
	if rec.SubType != nil {
		sub = *rec.SubType
	}
	if rec.ModRank != nil {
		rank = *rec.ModRank
	}
	return statisticRow{
		ItemID:      rec.ItemID,
		Datetime:    rec.Datetime,
		OrderType:   rec.OrderType,
		SubType:     &sub,
		ModRank:     &rank,
		Volume:      rec.Volume,
		MinPrice:    rec.MinPrice,
		MaxPrice:    rec.MaxPrice,
		OpenPrice:   rec.OpenPrice,
		ClosedPrice: rec.ClosedPrice,
		AvgPrice:    rec.AvgPrice,
		WAPrice:     rec.WAPrice,
		Median:      rec.Median,
		MovingAvg:   rec.MovingAvg,
		DonchTop:    rec.DonchTop,
		DonchBot:    rec.DonchBot,
	}
}

func (r statisticRow) model() models.StatisticRecord {
	rec := models.StatisticRecord{
		ItemID:      r.ItemID,
		Datetime:    r.Datetime.UTC(),
		OrderType:   r.OrderType,
		Volume:      r.Volume,
		MinPrice:    r.MinPrice,
		MaxPrice:    r.MaxPrice,
		AvgPrice:    r.AvgPrice,
		OpenPrice:   r.OpenPrice,
		ClosedPrice: r.ClosedPrice,
		WAPrice:     r.WAPrice,
		Median:      r.Median,
		MovingAvg:   r.MovingAvg,
		DonchTop:    r.DonchTop,
		DonchBot:    r.DonchBot,
	}
	if r.SubType != nil && *r.SubType != noSubType {
		s := *r.SubType
		rec.SubType = &s
	}
	if r.ModRank != nil && *r.ModRank != noModRank {
		m := *r.ModRank
		rec.ModRank = &m
	}
	return rec
}

func aliasKey(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
