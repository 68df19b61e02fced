package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/pkg/util"
)

// FileArtifactStore keeps one JSON file per date under a directory. Date
// files are write-once; side files are replaced atomically.
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore stores artifacts under dir, or dir/platform for
// platforms other than pc.
func NewFileArtifactStore(dir, platform string) (*FileArtifactStore, error) {
	if platform != "" && platform != "pc" {
		dir = filepath.Join(dir, platform)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	return &FileArtifactStore{dir: dir}, nil
}

// Dir returns the directory artifacts are written to.
func (s *FileArtifactStore) Dir() string { return s.dir }

func (s *FileArtifactStore) path(date string) string {
	return filepath.Join(s.dir, util.ArtifactName(date))
}

func (s *FileArtifactStore) Exists(_ context.Context, date string) (bool, error) {
	_, err := os.Stat(s.path(date))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List returns every artifact date in ascending order.
func (s *FileArtifactStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := util.DateFromArtifact(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (s *FileArtifactStore) Read(_ context.Context, date string) (models.DayBundle, error) {
	data, err := os.ReadFile(s.path(date))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", date, err)
	}
	var bundle models.DayBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", date, err)
	}
	return bundle, nil
}

// CreateIfAbsent writes bundle for date unless a file already exists. The
// file appears complete or not at all. It reports whether it wrote.
func (s *FileArtifactStore) CreateIfAbsent(_ context.Context, date string, bundle models.DayBundle) (bool, error) {
	if bundle == nil {
		bundle = models.DayBundle{}
	}
	bundle.Sort()
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode artifact %s: %w", date, err)
	}

	tmp, err := s.writeTemp(data)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	// link fails with ErrExist instead of replacing like rename would
	if err := os.Link(tmp, s.path(date)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create artifact %s: %w", date, err)
	}
	return true, nil
}

// WriteSide replaces the side file name with v encoded as JSON.
func (s *FileArtifactStore) WriteSide(_ context.Context, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := s.writeTemp(data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadSide decodes the side file name into v. A missing file yields an
// error matching fs.ErrNotExist.
func (s *FileArtifactStore) ReadSide(_ context.Context, name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileArtifactStore) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp: %w", err)
	}
	return name, nil
}

var _ domrepo.ArtifactStore = (*FileArtifactStore)(nil)
