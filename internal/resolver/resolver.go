package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	pkgcache "MarketEngine/pkg/cache"
	xlogger "MarketEngine/pkg/logger"
)

var (
	// ErrAliasExists is returned when an alias already names an item.
	ErrAliasExists = errors.New("alias already exists")
	// ErrItemNotFound is returned when an alias targets an unknown item.
	ErrItemNotFound = errors.New("item not found")
)

// DefaultWordAliases are always applied before fuzzy matching.
var DefaultWordAliases = map[string]string{
	"head":     "neuroptics",
	"taserman": "volt",
}

const defaultThreshold = 50

// Match is the outcome of a fuzzy lookup. Found is false when the best
// candidate did not clear the threshold.
type Match struct {
	Item  models.Item
	Score int
	Found bool
}

type candidate struct {
	item  models.Item
	names []string // cleaned name and aliases
}

// Resolver maps item names to ids. The exact path serves the aggregation
// hot path; the fuzzy path serves operator queries.
type Resolver struct {
	store     domrepo.ItemStore
	logger    *xlogger.Logger
	threshold int

	mu           sync.RWMutex
	ids          map[string]string
	translations models.TranslationTable
	candidates   []candidate
	byID         map[string]int
	aliasOwner   map[string]string
	wordAliases  map[string]string
	memo         *lru.Cache[string, Match]
}

type Option func(*Resolver)

// WithThreshold overrides the acceptance score for fuzzy matches.
func WithThreshold(n int) Option {
	return func(r *Resolver) { r.threshold = n }
}

// WithLogger sets the logger.
func WithLogger(l *xlogger.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver with an LRU memo of memoSize fuzzy results. store
// may be nil for a read-only resolver fed through SetCatalog.
func New(store domrepo.ItemStore, memoSize int, opts ...Option) (*Resolver, error) {
	if memoSize <= 0 {
		memoSize = 1024
	}
	memo, err := lru.New[string, Match](memoSize)
	if err != nil {
		return nil, fmt.Errorf("create resolver memo: %w", err)
	}
	r := &Resolver{
		store:        store,
		logger:       xlogger.Nop(),
		threshold:    defaultThreshold,
		ids:          make(map[string]string),
		translations: models.TranslationTable{},
		byID:         make(map[string]int),
		aliasOwner:   make(map[string]string),
		wordAliases:  copyAliases(DefaultWordAliases),
		memo:         memo,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reload replaces the catalog and word aliases with the store's content.
func (r *Resolver) Reload(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	items, err := r.store.Items(ctx)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	words, err := r.store.WordAliases(ctx)
	if err != nil {
		return fmt.Errorf("load word aliases: %w", err)
	}

	aliases := copyAliases(DefaultWordAliases)
	for _, w := range words {
		aliases[strings.ToLower(w.Word)] = strings.ToLower(w.Alias)
	}

	r.mu.Lock()
	r.wordAliases = aliases
	r.setCatalogLocked(items)
	r.memo.Purge()
	r.mu.Unlock()

	r.logger.Debug("resolver reloaded", xlogger.Int("items", len(items)), xlogger.Int("word_aliases", len(aliases)))
	return nil
}

// SetCatalog replaces the candidate set and the exact name index.
func (r *Resolver) SetCatalog(items []models.Item) {
	r.mu.Lock()
	r.setCatalogLocked(items)
	r.memo.Purge()
	r.mu.Unlock()
}

func (r *Resolver) setCatalogLocked(items []models.Item) {
	r.candidates = make([]candidate, 0, len(items))
	r.byID = make(map[string]int, len(items))
	r.aliasOwner = make(map[string]string)
	for _, it := range items {
		if it.Name != "" {
			r.ids[it.Name] = it.ID
		}
		for _, a := range it.Aliases {
			r.aliasOwner[strings.ToLower(a)] = it.ID
		}
		r.byID[it.ID] = len(r.candidates)
		r.candidates = append(r.candidates, newCandidate(it))
	}
}

func newCandidate(it models.Item) candidate {
	names := make([]string, 0, 1+len(it.Aliases))
	names = append(names, clean(it.Name))
	for _, a := range it.Aliases {
		names = append(names, clean(a))
	}
	return candidate{item: it, names: names}
}

// AddIDs merges a name to id table, e.g. the mirror's item_ids.json.
// Existing catalog ids win.
func (r *Resolver) AddIDs(ids map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, id := range ids {
		if _, ok := r.ids[name]; !ok && id != "" {
			r.ids[name] = id
		}
	}
}

// SetTranslations installs the historical name table.
func (r *Resolver) SetTranslations(t models.TranslationTable) {
	if t == nil {
		t = models.TranslationTable{}
	}
	r.mu.Lock()
	r.translations = t
	r.mu.Unlock()
}

// Translate maps a historical name onto its current name.
func (r *Resolver) Translate(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.translations.Translate(name)
}

// Resolve returns the id for name: translation first, then the catalog,
// then a deterministic id derived from the name. Never empty.
func (r *Resolver) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := r.translations.Translate(name)
	if id, ok := r.ids[current]; ok {
		return id
	}
	return FallbackID(current)
}

// FallbackID is the id given to names missing from the catalog.
func FallbackID(name string) string {
	return pkgcache.Digest(name)
}

// IDs returns a copy of the name to id table.
func (r *Resolver) IDs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.ids))
	for k, v := range r.ids {
		out[k] = v
	}
	return out
}

// FuzzyFind returns the best catalog match for a free-text query.
func (r *Resolver) FuzzyFind(query string) Match {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))

	// Writers purge the memo under the write lock, so a result computed
	// under the read lock is never stale.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.memo.Get(key); ok {
		return m
	}

	q := clean(substituteWords(key, r.wordAliases))
	best := Match{}
	for _, c := range r.candidates {
		score := 0
		for _, n := range c.names {
			if s := Ratio(q, n); s > score {
				score = s
			}
		}
		if score > best.Score {
			best = Match{Item: c.item, Score: score}
			if score == 100 {
				break
			}
		}
	}

	best.Found = best.Score > r.threshold
	r.memo.Add(key, best)
	return best
}

// AddItemAlias persists alias for itemID and makes it visible to the next
// lookup.
func (r *Resolver) AddItemAlias(ctx context.Context, itemID, alias string) error {
	alias = strings.TrimSpace(alias)
	key := strings.ToLower(alias)

	r.mu.RLock()
	_, known := r.byID[itemID]
	_, taken := r.aliasOwner[key]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if taken {
		return fmt.Errorf("%w: %q", ErrAliasExists, alias)
	}
	if r.store != nil {
		if err := r.store.AddItemAlias(ctx, itemID, alias); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if idx, ok := r.byID[itemID]; ok {
		it := r.candidates[idx].item
		it.Aliases = append(append([]string{}, it.Aliases...), alias)
		r.candidates[idx] = newCandidate(it)
		r.aliasOwner[key] = itemID
	}
	r.memo.Purge()
	r.mu.Unlock()
	return nil
}

// RemoveItemAlias deletes alias from whichever item owns it.
func (r *Resolver) RemoveItemAlias(ctx context.Context, alias string) error {
	key := strings.ToLower(strings.TrimSpace(alias))

	r.mu.RLock()
	owner, ok := r.aliasOwner[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: alias %q", ErrItemNotFound, alias)
	}
	if r.store != nil {
		if err := r.store.RemoveItemAlias(ctx, alias); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.aliasOwner, key)
	if idx, ok := r.byID[owner]; ok {
		it := r.candidates[idx].item
		kept := make([]string, 0, len(it.Aliases))
		for _, a := range it.Aliases {
			if !strings.EqualFold(a, alias) {
				kept = append(kept, a)
			}
		}
		it.Aliases = kept
		r.candidates[idx] = newCandidate(it)
	}
	r.memo.Purge()
	r.mu.Unlock()
	return nil
}

// AddWordAlias persists a word substitution and applies it immediately.
func (r *Resolver) AddWordAlias(ctx context.Context, word, alias string) error {
	word, alias = strings.ToLower(strings.TrimSpace(word)), strings.ToLower(strings.TrimSpace(alias))

	r.mu.RLock()
	_, exists := r.wordAliases[word]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: word %q", ErrAliasExists, word)
	}
	if r.store != nil {
		if err := r.store.AddWordAlias(ctx, word, alias); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.wordAliases[word] = alias
	r.memo.Purge()
	r.mu.Unlock()
	return nil
}

func copyAliases(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
