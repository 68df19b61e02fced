package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/pkg/util"
)

// Client reads the community mirror: a directory of per-date history files
// plus the market_data side files.
type Client struct {
	fetcher domrepo.Fetcher
	baseURL string
}

func NewClient(fetcher domrepo.Fetcher, baseURL string) *Client {
	return &Client{fetcher: fetcher, baseURL: strings.TrimRight(baseURL, "/")}
}

// HistoryDates lists the dates with a history file on the mirror, ascending.
func (c *Client) HistoryDates(ctx context.Context) ([]string, error) {
	body, err := c.fetcher.Get(ctx, c.baseURL+"/history/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch history listing: %w", err)
	}
	links, err := jsonLinks(body)
	if err != nil {
		return nil, fmt.Errorf("parse history listing: %w", err)
	}

	var dates []string
	for _, link := range links {
		if d, ok := util.DateFromArtifact(link); ok {
			dates = append(dates, d)
		}
	}
	return util.DatesAfter(dates, ""), nil
}

// History fetches the bundle of one date.
func (c *Client) History(ctx context.Context, date string) (models.DayBundle, error) {
	var bundle models.DayBundle
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/history/"+util.ArtifactName(date), nil, &bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ItemIDs returns the mirror's item name to id table.
func (c *Client) ItemIDs(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string)
	if err := c.marketData(ctx, "item_ids.json", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Translations returns the old name to current name table.
func (c *Client) Translations(ctx context.Context) (models.TranslationTable, error) {
	t := make(models.TranslationTable)
	if err := c.marketData(ctx, "translation_dict.json", &t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Client) marketData(ctx context.Context, file string, dest interface{}) error {
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/market_data/"+file, nil, dest); err != nil {
		return fmt.Errorf("fetch %s: %w", file, err)
	}
	return nil
}

// jsonLinks returns every distinct href ending in "json", sorted.
func jsonLinks(page []byte) ([]string, error) {
	seen := make(map[string]struct{})
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			links := make([]string, 0, len(seen))
			for l := range seen {
				links = append(links, l)
			}
			sort.Strings(links)
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" && strings.HasSuffix(string(val), "json") {
					seen[string(val)] = struct{}{}
				}
			}
		}
	}
}
