package models

import (
	"sort"
	"strings"
	"time"
)

// OrderClosed is the canonical order type of closed-trade statistics.
const OrderClosed = "closed"

// DateLayout names artifacts and checkpoint dates.
const DateLayout = "2006-01-02"

// StatisticRecord is one day of trading statistics for one item.
type StatisticRecord struct {
	ItemID      string    `json:"item_id"`
	Datetime    time.Time `json:"datetime"`
	OrderType   string    `json:"order_type"`
	Volume      float64   `json:"volume"`
	MinPrice    float64   `json:"min_price"`
	MaxPrice    float64   `json:"max_price"`
	AvgPrice    float64   `json:"avg_price"`
	OpenPrice   *float64  `json:"open_price,omitempty"`
	ClosedPrice *float64  `json:"closed_price,omitempty"`
	WAPrice     *float64  `json:"wa_price,omitempty"`
	Median      *float64  `json:"median,omitempty"`
	MovingAvg   *float64  `json:"moving_avg,omitempty"`
	DonchTop    *float64  `json:"donch_top,omitempty"`
	DonchBot    *float64  `json:"donch_bot,omitempty"`
	SubType     *string   `json:"subtype,omitempty"`
	ModRank     *int      `json:"mod_rank,omitempty"`
}

// Normalize pins the record to its UTC calendar day and canonicalizes the
// order type. Records without an order type are closed-trade records.
func (r *StatisticRecord) Normalize() {
	r.Datetime = DayOf(r.Datetime)
	r.OrderType = strings.ToLower(strings.TrimSpace(r.OrderType))
	if r.OrderType == "" {
		r.OrderType = OrderClosed
	}
}

// Date returns the record's calendar day as YYYY-MM-DD.
func (r StatisticRecord) Date() string {
	return r.Datetime.UTC().Format(DateLayout)
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DayBundle is the content of one per-date artifact: item name to records.
type DayBundle map[string][]StatisticRecord

// Sort orders every item's records so encoding is reproducible.
func (b DayBundle) Sort() {
	for _, recs := range b {
		sort.SliceStable(recs, func(i, j int) bool {
			return recordLess(recs[i], recs[j])
		})
	}
}

// Len returns the number of records across all items.
func (b DayBundle) Len() int {
	n := 0
	for _, recs := range b {
		n += len(recs)
	}
	return n
}

func recordLess(a, b StatisticRecord) bool {
	if !a.Datetime.Equal(b.Datetime) {
		return a.Datetime.Before(b.Datetime)
	}
	if a.OrderType != b.OrderType {
		return a.OrderType < b.OrderType
	}
	as, bs := derefString(a.SubType), derefString(b.SubType)
	if as != bs {
		return as < bs
	}
	ar, br := derefInt(a.ModRank, -1), derefInt(b.ModRank, -1)
	if ar != br {
		return ar < br
	}
	// Two catalog entries can share a display name and so a bucket; the
	// remaining fields keep their interleaving stable.
	if a.ItemID != b.ItemID {
		return a.ItemID < b.ItemID
	}
	if a.Volume != b.Volume {
		return a.Volume < b.Volume
	}
	if a.AvgPrice != b.AvgPrice {
		return a.AvgPrice < b.AvgPrice
	}
	if a.MinPrice != b.MinPrice {
		return a.MinPrice < b.MinPrice
	}
	return a.MaxPrice < b.MaxPrice
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Optional discriminator columns of item_statistics.
const (
	ColumnSubType = "subtype"
	ColumnModRank = "mod_rank"
)

// BaseStatisticColumns are written for every record.
var BaseStatisticColumns = []string{
	"item_id", "datetime", "order_type", "volume",
	"min_price", "max_price", "open_price", "closed_price", "avg_price",
	"wa_price", "median", "moving_avg", "donch_top", "donch_bot",
}

// StatisticColumns returns the base columns plus every optional
// discriminator that at least one record carries.
func StatisticColumns(records []StatisticRecord) []string {
	var sub, rank bool
	for _, r := range records {
		sub = sub || r.SubType != nil
		rank = rank || r.ModRank != nil
		if sub && rank {
			break
		}
	}
	cols := append([]string{}, BaseStatisticColumns...)
	if sub {
		cols = append(cols, ColumnSubType)
	}
	if rank {
		cols = append(cols, ColumnModRank)
	}
	return cols
}
