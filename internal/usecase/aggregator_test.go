package usecase

import (
	"context"
	"errors"
	"testing"

	"MarketEngine/internal/domain/models"
	"MarketEngine/internal/resolver"
	"MarketEngine/internal/service/market"
	"MarketEngine/pkg/metrics"
)

func newTestAggregator(t *testing.T, m *fakeMarket, mirror MirrorSource, events *recordingEvents) (*Aggregator, *resolver.Resolver) {
	t.Helper()
	res := newResolver(t, nil)
	a := NewAggregator(m, mirror, res, newArtifacts(t), events, metrics.Nop{}, nil, "")
	return a, res
}

func TestAggregatorBucketsByDate(t *testing.T) {
	m := &fakeMarket{
		items: []models.Item{
			{ID: "v1", Name: "Volt Prime Set", URLName: "volt_prime_set"},
			{ID: "s1", Name: "Serration", URLName: "serration"},
			{ID: "x1", Name: "Broken", URLName: "broken"},
		},
		stats: map[string]*market.Statistics{
			"volt_prime_set": {
				Closed: []models.StatisticRecord{stat("2024-05-01", ""), stat("2024-05-02", "")},
				Live:   []models.StatisticRecord{stat("2024-05-02", "Buy")},
				Info:   models.ItemInfo{ItemID: "v1", SetItems: []string{"p1", "p2"}},
			},
			"serration": {
				Closed: []models.StatisticRecord{stat("2024-05-01", "")},
				Info:   models.ItemInfo{ModMaxRank: ptr(10)},
			},
		},
	}
	mirror := &fakeMirror{translations: models.TranslationTable{"Serration": "Serration Mod"}}
	a, _ := newTestAggregator(t, m, mirror, &recordingEvents{})

	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Dates(); len(got) != 2 || got[0] != "2024-05-01" || got[1] != "2024-05-02" {
		t.Fatalf("dates = %v", got)
	}
	if res.Records != 4 {
		t.Fatalf("records = %d", res.Records)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "broken" {
		t.Fatalf("failed = %v", res.Failed)
	}

	day1 := res.Buckets["2024-05-01"]
	if _, ok := day1["Serration Mod"]; !ok {
		t.Fatalf("translated name missing from bucket: %v", day1)
	}
	for _, rec := range day1["Volt Prime Set"] {
		if rec.ItemID != "v1" || rec.OrderType != models.OrderClosed {
			t.Fatalf("record not normalized: %+v", rec)
		}
	}
	live := res.Buckets["2024-05-02"]["Volt Prime Set"]
	var sawBuy bool
	for _, rec := range live {
		sawBuy = sawBuy || rec.OrderType == "buy"
	}
	if !sawBuy {
		t.Fatalf("live record lost: %+v", live)
	}

	if info, ok := res.Info["s1"]; !ok || info.ModMaxRank == nil || *info.ModMaxRank != 10 {
		t.Fatalf("info = %+v", res.Info)
	}
	if len(res.Items) != 3 || res.Items[0].ID != "s1" || res.Items[0].MaxRank == nil {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestAggregatorCatalogFailure(t *testing.T) {
	m := &fakeMarket{itemsErr: errors.New("status 503")}
	a, _ := newTestAggregator(t, m, nil, &recordingEvents{})
	if _, err := a.Run(context.Background()); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAggregatorFallbackID(t *testing.T) {
	m := &fakeMarket{
		items: []models.Item{{Name: "Mystery Part", URLName: "mystery_part"}},
		stats: map[string]*market.Statistics{
			"mystery_part": {Closed: []models.StatisticRecord{stat("2024-05-01", "closed")}},
		},
	}
	a, _ := newTestAggregator(t, m, nil, &recordingEvents{})
	res, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := res.Buckets["2024-05-01"]["Mystery Part"][0]
	if rec.ItemID != resolver.FallbackID("Mystery Part") {
		t.Fatalf("item id = %q", rec.ItemID)
	}
}

func TestWriteArtifactsIsWriteOnce(t *testing.T) {
	m := &fakeMarket{
		items: []models.Item{{ID: "v1", Name: "Volt Prime Set", URLName: "volt_prime_set"}},
		stats: map[string]*market.Statistics{
			"volt_prime_set": {Closed: []models.StatisticRecord{stat("2024-05-01", ""), stat("2024-05-02", "")}},
		},
	}
	events := &recordingEvents{}
	a, _ := newTestAggregator(t, m, nil, events)
	ctx := context.Background()

	res, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	written, err := a.WriteArtifacts(ctx, res)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written = %v", written)
	}

	// a second pass over the same days writes nothing and stays quiet
	res, _ = a.Run(ctx)
	written, err = a.WriteArtifacts(ctx, res)
	if err != nil || len(written) != 0 {
		t.Fatalf("rewrite = %v, %v", written, err)
	}
	if len(events.artifacts) != 1 {
		t.Fatalf("events = %+v", events.artifacts)
	}
	ev := events.artifacts[0]
	if ev.Source != "market" || ev.Platform != "pc" || ev.RunID == "" || len(ev.Dates) != 2 {
		t.Fatalf("event = %+v", ev)
	}

	var items []models.Item
	if err := a.artifacts.ReadSide(ctx, SideItems, &items); err != nil || len(items) != 1 {
		t.Fatalf("items side file = %+v, %v", items, err)
	}
	ids := map[string]string{}
	if err := a.artifacts.ReadSide(ctx, SideItemIDs, &ids); err != nil || ids["Volt Prime Set"] != "v1" {
		t.Fatalf("ids side file = %v, %v", ids, err)
	}
}
