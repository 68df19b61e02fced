package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domrepo "MarketEngine/internal/domain/repository"
	xlogger "MarketEngine/pkg/logger"
)

// Manifest maps export categories (ExportWarframes, ExportUpgrades ...) to
// the display names listed under them.
type Manifest map[string][]string

// Client downloads the public export index and the files it lists.
type Client struct {
	fetcher  domrepo.Fetcher
	indexURL string
	baseURL  string
	logger   *xlogger.Logger
}

func NewClient(fetcher domrepo.Fetcher, indexURL, baseURL string, logger *xlogger.Logger) *Client {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &Client{
		fetcher:  fetcher,
		indexURL: indexURL,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// Index returns the export file names from the compressed index.
func (c *Client) Index(ctx context.Context) ([]string, error) {
	raw, err := c.fetcher.Get(ctx, c.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest index: %w", err)
	}
	data, err := Repair(raw)
	if err != nil {
		return nil, err
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\r\n") {
		if line = strings.TrimSpace(line); line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// Fetch downloads every export listed in the index. Files that fail to
// fetch or parse are logged and skipped.
func (c *Client) Fetch(ctx context.Context) (Manifest, error) {
	entries, err := c.Index(ctx)
	if err != nil {
		return nil, err
	}

	m := make(Manifest)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := c.fetcher.Get(ctx, c.baseURL+"/"+entry, nil)
		if err != nil {
			c.logger.Error("failed to fetch manifest export", xlogger.String("entry", entry), xlogger.Error(err))
			continue
		}
		if err := m.merge(body); err != nil {
			c.logger.Warn("skipping unparsable manifest export", xlogger.String("entry", entry), xlogger.Error(err))
		}
	}
	return m, nil
}

type exportEntry struct {
	Name string `json:"name"`
}

func (m Manifest) merge(body []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(sanitize(body), &doc); err != nil {
		return err
	}
	for category, raw := range doc {
		var entries []exportEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			continue // scalar or object sections carry no names
		}
		for _, e := range entries {
			if e.Name != "" {
				m[category] = append(m[category], e.Name)
			}
		}
	}
	return nil
}

// sanitize escapes raw control characters inside JSON strings. The export
// files embed literal newlines and tabs in descriptions.
func sanitize(b []byte) []byte {
	const hex = "0123456789abcdef"
	out := make([]byte, 0, len(b))
	inString, escaped := false, false
	for _, c := range b {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			out = append(out, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
			continue
		}
		out = append(out, c)
	}
	return out
}
