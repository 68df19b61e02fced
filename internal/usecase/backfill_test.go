package usecase

import (
	"context"
	"testing"

	"MarketEngine/internal/domain/models"
	"MarketEngine/pkg/metrics"
)

func TestBackfillWritesMissingDates(t *testing.T) {
	ctx := context.Background()
	artifacts := newArtifacts(t)
	res := newResolver(t, nil)
	events := &recordingEvents{}

	if _, err := artifacts.CreateIfAbsent(ctx, "2024-05-01", models.DayBundle{"A": {stat("2024-05-01", "")}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mirror := &fakeMirror{
		dates: []string{"2024-05-01", "2024-05-02", "2024-05-03"},
		history: map[string]models.DayBundle{
			"2024-05-01": {"A": {stat("2024-05-01", "")}},
			"2024-05-02": {
				"Old Name": {withID(stat("2024-05-02", ""), "stale")},
				"Kept":     {withID(stat("2024-05-02", "Closed"), "k1")},
			},
		},
		ids:          map[string]string{"New Name": "n1"},
		translations: models.TranslationTable{"Old Name": "New Name"},
	}

	b := NewBackfiller(mirror, res, artifacts, events, metrics.Nop{}, nil, "pc", "")
	report, err := b.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Listed != 3 || len(report.Missing) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Written) != 1 || report.Written[0] != "2024-05-02" {
		t.Fatalf("written = %v", report.Written)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "2024-05-03" {
		t.Fatalf("failed = %v", report.Failed)
	}

	bundle, err := artifacts.Read(ctx, "2024-05-02")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := bundle["Old Name"]; ok {
		t.Fatalf("historical name not translated: %v", bundle)
	}
	if got := bundle["New Name"][0]; got.ItemID != "n1" {
		t.Fatalf("renamed record id = %q", got.ItemID)
	}
	if got := bundle["Kept"][0]; got.ItemID != "k1" || got.OrderType != models.OrderClosed {
		t.Fatalf("kept record = %+v", got)
	}

	if len(events.artifacts) != 1 || events.artifacts[0].Source != "mirror" {
		t.Fatalf("events = %+v", events.artifacts)
	}

	// the failed date is retried, the rest is already there
	report, err = b.Run(ctx)
	if err != nil || len(report.Missing) != 1 || len(report.Written) != 0 {
		t.Fatalf("rerun = %+v, %v", report, err)
	}
}
