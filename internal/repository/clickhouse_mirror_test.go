package repository

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"MarketEngine/internal/domain/models"
	pkgch "MarketEngine/pkg/clickhouse"
)

func TestMirrorRowUsesSentinels(t *testing.T) {
	at := time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC)
	rec := record("v", "2024-05-01")
	rec.OrderType = "Closed"
	row := mirrorRow(rec, at)

	if len(row) != len(strings.Split(mirrorColumns, ",")) {
		t.Fatalf("row has %d values for %d columns", len(row), len(strings.Split(mirrorColumns, ",")))
	}
	if row[2] != "closed" || row[3] != "" || row[4] != int16(-1) {
		t.Fatalf("discriminators = %v %v %v", row[2], row[3], row[4])
	}
	if row[16] != at {
		t.Fatalf("loaded_at = %v", row[16])
	}

	rec.SubType = strPtr("radiant")
	rec.ModRank = intPtr(5)
	row = mirrorRow(rec, at)
	if row[3] != "radiant" || row[4] != int16(5) {
		t.Fatalf("discriminators = %v %v", row[3], row[4])
	}
}

func TestMirrorSchema(t *testing.T) {
	tests := []struct {
		name    string
		opts    MirrorOptions
		table   string
		wantTTL string
	}{
		{name: "defaults", opts: MirrorOptions{}, table: "item_statistics"},
		{name: "named table", opts: MirrorOptions{Table: "stats_test"}, table: "stats_test"},
		{name: "retention", opts: MirrorOptions{Retention: 90 * 24 * time.Hour}, table: "item_statistics", wantTTL: "TTL datetime + INTERVAL 90 DAY"},
		{name: "sub-day retention is ignored", opts: MirrorOptions{Retention: time.Hour}, table: "item_statistics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ddl := MirrorSchema(tt.opts)
			if len(ddl) != 1 || !strings.Contains(ddl[0], "EXISTS "+tt.table+" (") || !strings.Contains(ddl[0], "ReplacingMergeTree") {
				t.Fatalf("ddl = %v", ddl)
			}
			if tt.wantTTL == "" && strings.Contains(ddl[0], "TTL") {
				t.Fatalf("unexpected TTL in %s", ddl[0])
			}
			if tt.wantTTL != "" && !strings.HasSuffix(ddl[0], tt.wantTTL) {
				t.Fatalf("missing %q in %s", tt.wantTTL, ddl[0])
			}
		})
	}
}

func TestClickHouseMirrorLive(t *testing.T) {
	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		t.Skip("CLICKHOUSE_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("CLICKHOUSE_PORT"))
	client, err := pkgch.NewClient(pkgch.WithHost(host), pkgch.WithPort(port))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	m := NewClickHouseMirror(client, MirrorOptions{Table: "item_statistics_test", BatchSize: 2}, nil)
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	recs := []models.StatisticRecord{record("a", "2024-05-01"), record("b", "2024-05-01"), record("c", "2024-05-02")}
	if err := m.MirrorStatistics(ctx, recs); err != nil {
		t.Fatalf("mirror: %v", err)
	}
}
