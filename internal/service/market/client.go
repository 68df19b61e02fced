package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
)

// Client reads the marketplace REST API through the shared fetch layer.
type Client struct {
	fetcher  domrepo.Fetcher
	baseURL  string
	platform string
	language string
}

func NewClient(fetcher domrepo.Fetcher, baseURL, platform, language string) *Client {
	if platform == "" {
		platform = "pc"
	}
	if language == "" {
		language = "en"
	}
	return &Client{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: platform,
		language: language,
	}
}

// Platform returns the platform statistics are requested for.
func (c *Client) Platform() string { return c.platform }

type itemsResponse struct {
	Payload struct {
		Items []models.Item `json:"items"`
	} `json:"payload"`
}

// Items returns the catalog.
func (c *Client) Items(ctx context.Context) ([]models.Item, error) {
	var resp itemsResponse
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/items", c.headers(), &resp); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return resp.Payload.Items, nil
}

type setPart struct {
	ID         string   `json:"id"`
	URLName    string   `json:"url_name"`
	SetRoot    bool     `json:"set_root"`
	Tags       []string `json:"tags"`
	ModMaxRank *int     `json:"mod_max_rank"`
	Subtypes   []string `json:"subtypes"`
	Thumb      string   `json:"thumb"`
	En         struct {
		ItemName string `json:"item_name"`
	} `json:"en"`
}

type itemPayload struct {
	ID         string    `json:"id"`
	ItemsInSet []setPart `json:"items_in_set"`
}

// Statistics is one item's 90-day statistics plus its set metadata.
type Statistics struct {
	Closed []models.StatisticRecord
	Live   []models.StatisticRecord
	Info   models.ItemInfo
}

// Records returns closed then live records.
func (s *Statistics) Records() []models.StatisticRecord {
	out := make([]models.StatisticRecord, 0, len(s.Closed)+len(s.Live))
	out = append(out, s.Closed...)
	return append(out, s.Live...)
}

type statisticsResponse struct {
	Payload struct {
		Closed map[string][]models.StatisticRecord `json:"statistics_closed"`
		Live   map[string][]models.StatisticRecord `json:"statistics_live"`
	} `json:"payload"`
	Include struct {
		Item itemPayload `json:"item"`
	} `json:"include"`
}

const window = "90days"

// Statistics fetches /items/{url_name}/statistics?include=item.
func (c *Client) Statistics(ctx context.Context, urlName string) (*Statistics, error) {
	u := fmt.Sprintf("%s/items/%s/statistics?include=item", c.baseURL, url.PathEscape(urlName))

	var resp statisticsResponse
	if err := c.fetcher.GetJSON(ctx, u, c.headers(), &resp); err != nil {
		return nil, err
	}
	return &Statistics{
		Closed: resp.Payload.Closed[window],
		Live:   resp.Payload.Live[window],
		Info:   parseItemInfo(resp.Include.Item),
	}, nil
}

// parseItemInfo picks the entry describing the item itself out of
// items_in_set. The other entries are set parts, kept only for set roots.
func parseItemInfo(item itemPayload) models.ItemInfo {
	info := models.ItemInfo{ItemID: item.ID, Tags: []string{}, SetItems: []string{}, Subtypes: []string{}}
	setRoot := false
	for _, part := range item.ItemsInSet {
		if part.ID != item.ID {
			info.SetItems = append(info.SetItems, part.ID)
			continue
		}
		setRoot = part.SetRoot
		if part.Tags != nil {
			info.Tags = part.Tags
		}
		info.ModMaxRank = part.ModMaxRank
		if part.Subtypes != nil {
			info.Subtypes = part.Subtypes
		}
	}
	if !setRoot {
		info.SetItems = []string{}
	}
	return info
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Platform": c.platform, "Language": c.language}
}
