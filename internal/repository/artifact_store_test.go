package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"MarketEngine/internal/domain/models"
)

func TestCreateIfAbsentIsWriteOnce(t *testing.T) {
	s, err := NewFileArtifactStore(t.TempDir(), "pc")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	first := models.DayBundle{"Volt Prime Set": {record("v", "2024-05-01")}}
	wrote, err := s.CreateIfAbsent(ctx, "2024-05-01", first)
	if err != nil || !wrote {
		t.Fatalf("first write = %v, %v", wrote, err)
	}
	second := models.DayBundle{"Mesa Prime Set": {record("m", "2024-05-01")}}
	wrote, err = s.CreateIfAbsent(ctx, "2024-05-01", second)
	if err != nil || wrote {
		t.Fatalf("second write = %v, %v", wrote, err)
	}

	got, err := s.Read(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := got["Volt Prime Set"]; !ok || len(got) != 1 {
		t.Fatalf("artifact replaced: %v", got)
	}
	if ok, _ := s.Exists(ctx, "2024-05-01"); !ok {
		t.Fatalf("exists = false")
	}
	if ok, _ := s.Exists(ctx, "2024-05-02"); ok {
		t.Fatalf("exists for unwritten date")
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestArtifactsAreDeterministic(t *testing.T) {
	ctx := context.Background()
	a := record("v", "2024-05-01")
	b := record("v", "2024-05-01")
	b.OrderType = "buy"
	c := record("v", "2024-05-01")
	c.ModRank = intPtr(3)

	s1, _ := NewFileArtifactStore(t.TempDir(), "")
	s2, _ := NewFileArtifactStore(t.TempDir(), "")
	if _, err := s1.CreateIfAbsent(ctx, "2024-05-01", models.DayBundle{"x": {a, b, c}, "y": {a}}); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if _, err := s2.CreateIfAbsent(ctx, "2024-05-01", models.DayBundle{"y": {a}, "x": {c, b, a}}); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	d1, _ := os.ReadFile(filepath.Join(s1.Dir(), "price_history_2024-05-01.json"))
	d2, _ := os.ReadFile(filepath.Join(s2.Dir(), "price_history_2024-05-01.json"))
	if len(d1) == 0 || string(d1) != string(d2) {
		t.Fatalf("artifacts differ:\n%s\n%s", d1, d2)
	}
}

func TestListAndPlatformDir(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileArtifactStore(root, "ps4")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Dir() != filepath.Join(root, "ps4") {
		t.Fatalf("dir = %s", s.Dir())
	}
	ctx := context.Background()
	for _, d := range []string{"2024-05-03", "2024-05-01", "2024-05-02"} {
		if _, err := s.CreateIfAbsent(ctx, d, nil); err != nil {
			t.Fatalf("write %s: %v", d, err)
		}
	}
	if err := s.WriteSide(ctx, "items.json", []string{"a"}); err != nil {
		t.Fatalf("side: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "price_history_garbage.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dates, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2024-05-01", "2024-05-02", "2024-05-03"}
	if !reflect.DeepEqual(dates, want) {
		t.Fatalf("dates = %v, want %v", dates, want)
	}
}

func TestSideFiles(t *testing.T) {
	s, _ := NewFileArtifactStore(t.TempDir(), "")
	ctx := context.Background()

	var missing map[string]string
	if err := s.ReadSide(ctx, "item_ids.json", &missing); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing side err = %v", err)
	}

	if err := s.WriteSide(ctx, "item_ids.json", map[string]string{"Volt Prime Set": "v"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteSide(ctx, "item_ids.json", map[string]string{"Mesa Prime Set": "m"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	var ids map[string]string
	if err := s.ReadSide(ctx, "item_ids.json", &ids); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ids) != 1 || ids["Mesa Prime Set"] != "m" {
		t.Fatalf("ids = %v", ids)
	}
}
