package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"MarketEngine/internal/domain/models"
	"MarketEngine/pkg/metrics"
)

func TestArtifactsHandler(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()
	f.write(t, "2024-05-01", models.DayBundle{"A": {withID(stat("2024-05-01", ""), "a")}})
	h := NewArtifactsHandler("artifacts", "pc", f.loader(f.store, nil, CommitRun), metrics.Nop{}, nil)

	if h.Topic() != "artifacts" {
		t.Fatalf("topic = %q", h.Topic())
	}
	if err := h.Handle(ctx, []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}

	other, _ := json.Marshal(models.ArtifactsEvent{Platform: "ps4", Dates: []string{"2024-05-01"}})
	if err := h.Handle(ctx, other); err != nil {
		t.Fatalf("other platform: %v", err)
	}
	if n, _ := f.store.CountStatistics(ctx); n != 0 {
		t.Fatalf("other platform event loaded %d rows", n)
	}

	ev, _ := json.Marshal(models.ArtifactsEvent{RunID: "r", Source: "market", Platform: "PC", Dates: []string{"2024-05-01"}, At: time.Now()})
	if err := h.Handle(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n, _ := f.store.CountStatistics(ctx); n != 1 {
		t.Fatalf("rows = %d", n)
	}
}
