package models

import (
	"reflect"
	"testing"
	"time"
)

func TestDayBundleSortSharedName(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := StatisticRecord{ItemID: "a", Datetime: day, OrderType: OrderClosed, Volume: 5}
	b := StatisticRecord{ItemID: "b", Datetime: day, OrderType: OrderClosed, Volume: 1}
	c := StatisticRecord{ItemID: "b", Datetime: day, OrderType: OrderClosed, Volume: 3}
	live := StatisticRecord{ItemID: "a", Datetime: day, OrderType: "buy"}

	want := []StatisticRecord{live, a, b, c}
	orders := [][]StatisticRecord{
		{live, c, b, a},
		{b, a, live, c},
		{c, live, a, b},
	}
	for i, recs := range orders {
		bundle := DayBundle{"Volt Prime Set": recs}
		bundle.Sort()
		if !reflect.DeepEqual(bundle["Volt Prime Set"], want) {
			t.Fatalf("order %d: got %+v", i, bundle["Volt Prime Set"])
		}
	}
}
