package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"MarketEngine/internal/domain/models"
	"MarketEngine/internal/service/market"
)

// Side artifacts written next to the per-date files.
const (
	SideItems    = "items.json"
	SideItemIDs  = "item_ids.json"
	SideItemInfo = "item_info.json"
)

// MarketSource is the marketplace API.
type MarketSource interface {
	Platform() string
	Items(ctx context.Context) ([]models.Item, error)
	Statistics(ctx context.Context, urlName string) (*market.Statistics, error)
}

// MirrorSource is the community mirror.
type MirrorSource interface {
	HistoryDates(ctx context.Context) ([]string, error)
	History(ctx context.Context, date string) (models.DayBundle, error)
	ItemIDs(ctx context.Context) (map[string]string, error)
	Translations(ctx context.Context) (models.TranslationTable, error)
}

// Classifier assigns an item type from its display name, or "".
type Classifier interface {
	Classify(name string) string
}

// ClassifierLoader builds a classifier on demand. Loading may be expensive
// so the loader only asks when unclassified items exist.
type ClassifierLoader interface {
	LoadClassifier(ctx context.Context) (Classifier, error)
}

// loadTranslations reads the translation table from file when set, the
// mirror otherwise.
func loadTranslations(ctx context.Context, mirror MirrorSource, file string) (models.TranslationTable, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read translations: %w", err)
		}
		t := make(models.TranslationTable)
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode translations: %w", err)
		}
		return t, nil
	}
	if mirror == nil {
		return models.TranslationTable{}, nil
	}
	return mirror.Translations(ctx)
}
