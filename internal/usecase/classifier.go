package usecase

import (
	"context"
	"errors"
	"sync"

	"MarketEngine/internal/service/manifest"
)

var errEmptyManifest = errors.New("manifest classified no names")

// ManifestClassifierLoader downloads the export manifest once per process
// and classifies from it.
type ManifestClassifierLoader struct {
	client *manifest.Client

	mu     sync.Mutex
	cached *manifest.Classifier
}

func NewManifestClassifierLoader(client *manifest.Client) *ManifestClassifierLoader {
	return &ManifestClassifierLoader{client: client}
}

func (m *ManifestClassifierLoader) LoadClassifier(ctx context.Context) (Classifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return m.cached, nil
	}
	mf, err := m.client.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c := manifest.NewClassifier(mf)
	if c.Len() == 0 {
		return nil, errEmptyManifest
	}
	m.cached = c
	return c, nil
}
