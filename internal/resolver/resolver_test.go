package resolver

import (
	"context"
	"errors"
	"testing"

	"MarketEngine/internal/domain/models"
)

type memStore struct {
	items       []models.Item
	words       []models.WordAlias
	itemAliases map[string]string
}

func (s *memStore) Items(context.Context) ([]models.Item, error) { return s.items, nil }

func (s *memStore) WordAliases(context.Context) ([]models.WordAlias, error) { return s.words, nil }

func (s *memStore) AddItemAlias(_ context.Context, itemID, alias string) error {
	if s.itemAliases == nil {
		s.itemAliases = map[string]string{}
	}
	s.itemAliases[alias] = itemID
	return nil
}

func (s *memStore) RemoveItemAlias(_ context.Context, alias string) error {
	delete(s.itemAliases, alias)
	return nil
}

func (s *memStore) AddWordAlias(_ context.Context, word, alias string) error {
	s.words = append(s.words, models.WordAlias{Word: word, Alias: alias})
	return nil
}

var catalog = []models.Item{
	{ID: "vp_set", Name: "Volt Prime Set"},
	{ID: "vp_neuro", Name: "Volt Prime Neuroptics"},
	{ID: "vp_sys", Name: "Volt Prime Systems"},
	{ID: "mesa_sys", Name: "Mesa Prime Systems"},
	{ID: "primed_cont", Name: "Primed Continuity"},
	{ID: "continuity", Name: "Continuity"},
	{ID: "arc_energize", Name: "Arcane Energize", Aliases: []string{"Energizer"}},
}

func newTestResolver(t *testing.T) (*Resolver, *memStore) {
	t.Helper()
	store := &memStore{items: catalog}
	r, err := New(store, 64)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return r, store
}

func TestFuzzyFind(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		query     string
		wantID    string
		wantFound bool
	}{
		{"Volt Neuroptics", "vp_neuro", true},
		{"Volt Prime Head", "vp_neuro", true},
		{"Taserman Prime Head", "vp_neuro", true},
		{"volt prime neuroptics blueprint", "vp_neuro", true},
		{"mesa systems", "mesa_sys", true},
		{"Primed Continuity", "primed_cont", true},
		{"continuity", "continuity", true},
		{"energizer", "arc_energize", true},
		{"xyzzy", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := r.FuzzyFind(tt.query)
			if m.Found != tt.wantFound {
				t.Fatalf("found = %v (score %d, item %q)", m.Found, m.Score, m.Item.ID)
			}
			if tt.wantFound && m.Item.ID != tt.wantID {
				t.Fatalf("item = %q (score %d), want %q", m.Item.ID, m.Score, tt.wantID)
			}
		})
	}
}

func TestFuzzyFindAliasSubstitutionAgrees(t *testing.T) {
	// taserman->volt on one side and head->neuroptics on the other must
	// land on the same item.
	r, _ := newTestResolver(t)
	a := r.FuzzyFind("Taserman Neuroptics")
	b := r.FuzzyFind("Volt Head")
	if !a.Found || !b.Found || a.Item.ID != b.Item.ID || a.Score <= 50 || b.Score <= 50 {
		t.Fatalf("taserman=%+v head=%+v", a, b)
	}
}

func TestFuzzyFindNoiseOnlyQuery(t *testing.T) {
	r, err := New(&memStore{items: []models.Item{{ID: "prime_set", Name: "Prime Set"}}}, 16)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, q := range []string{"set", "prime", "arcane set"} {
		if m := r.FuzzyFind(q); m.Found || m.Score != 0 {
			t.Fatalf("%q matched %q with score %d", q, m.Item.ID, m.Score)
		}
	}
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver(t)
	r.SetTranslations(models.TranslationTable{"Old Volt Set": "Volt Prime Set"})
	r.AddIDs(map[string]string{"Mirror Only": "m1", "Volt Prime Set": "ignored"})

	if got := r.Resolve("Old Volt Set"); got != "vp_set" {
		t.Fatalf("translated = %q", got)
	}
	if got := r.Resolve("Volt Prime Set"); got != "vp_set" {
		t.Fatalf("catalog ids must win over mirror ids, got %q", got)
	}
	if got := r.Resolve("Mirror Only"); got != "m1" {
		t.Fatalf("mirror id = %q", got)
	}

	ghost := r.Resolve("Ghost Item")
	if len(ghost) != 32 || ghost != r.Resolve("Ghost Item") || ghost != FallbackID("Ghost Item") {
		t.Fatalf("fallback id must be a stable md5 hex, got %q", ghost)
	}
}

func TestItemAliases(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(t)

	if m := r.FuzzyFind("zappy back"); m.Score == 100 {
		t.Fatalf("unexpected perfect match before alias: %+v", m)
	}
	if err := r.AddItemAlias(ctx, "vp_sys", "Zappy Back"); err != nil {
		t.Fatalf("add alias: %v", err)
	}
	if store.itemAliases["Zappy Back"] != "vp_sys" {
		t.Fatalf("alias not persisted: %v", store.itemAliases)
	}
	if m := r.FuzzyFind("zappy back"); m.Item.ID != "vp_sys" || m.Score != 100 {
		t.Fatalf("alias not applied without reload: %+v", m)
	}

	if err := r.AddItemAlias(ctx, "mesa_sys", "zappy back"); !errors.Is(err, ErrAliasExists) {
		t.Fatalf("expected ErrAliasExists, got %v", err)
	}
	if err := r.AddItemAlias(ctx, "nope", "other"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	if err := r.RemoveItemAlias(ctx, "Zappy Back"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m := r.FuzzyFind("zappy back"); m.Score == 100 {
		t.Fatalf("removed alias still matches: %+v", m)
	}
	if err := r.RemoveItemAlias(ctx, "Zappy Back"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestWordAliases(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(t)

	before := r.FuzzyFind("sparky neuroptics")
	if err := r.AddWordAlias(ctx, "Sparky", "volt"); err != nil {
		t.Fatalf("add word alias: %v", err)
	}
	after := r.FuzzyFind("sparky neuroptics")
	if after.Score != 100 || after.Score <= before.Score || after.Item.ID != "vp_neuro" {
		t.Fatalf("before=%+v after=%+v", before, after)
	}
	if err := r.AddWordAlias(ctx, "sparky", "mesa"); !errors.Is(err, ErrAliasExists) {
		t.Fatalf("expected ErrAliasExists, got %v", err)
	}

	// A fresh resolver over the same store sees the persisted word alias.
	r2, err := New(store, 8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r2.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m := r2.FuzzyFind("sparky neuroptics"); m.Score != 100 {
		t.Fatalf("persisted word alias not loaded: %+v", m)
	}
}
