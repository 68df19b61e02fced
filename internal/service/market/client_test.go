package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketEngine/internal/service/fetch"
	xhttp "MarketEngine/pkg/http"
)

const statisticsBody = `{
  "payload": {
    "statistics_closed": {
      "48hours": [{"datetime": "2024-05-02T10:00:00.000+00:00", "volume": 1}],
      "90days": [
        {"datetime": "2024-05-01T00:00:00.000+00:00", "volume": 12, "min_price": 40, "max_price": 55, "avg_price": 47.5, "median": 46, "id": "x1"},
        {"datetime": "2024-05-02T00:00:00.000+00:00", "volume": 3, "min_price": 41, "max_price": 50, "avg_price": 45, "mod_rank": 0}
      ]
    },
    "statistics_live": {
      "90days": [
        {"datetime": "2024-05-01T00:00:00.000+00:00", "volume": 30, "min_price": 35, "max_price": 70, "avg_price": 50, "order_type": "sell"}
      ]
    }
  },
  "include": {
    "item": {
      "id": "set1",
      "items_in_set": [
        {"id": "part1", "url_name": "volt_prime_neuroptics", "tags": ["component"]},
        {"id": "set1", "url_name": "volt_prime_set", "set_root": true, "tags": ["prime", "set"], "mod_max_rank": 3, "subtypes": ["intact"]},
        {"id": "part2", "url_name": "volt_prime_chassis"}
      ]
    }
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f := fetch.New(xhttp.NewClient(xhttp.WithTimeout(2*time.Second)),
		fetch.WithRetryPolicy(fetch.RetryPolicy{MaxAttempts: 1}))
	return NewClient(f, srv.URL+"/v1/", "ps4", "en")
}

func TestStatistics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/items/volt_prime_set/statistics" || r.URL.Query().Get("include") != "item" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Platform") != "ps4" || r.Header.Get("Language") != "en" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(statisticsBody))
	})

	stats, err := c.Statistics(context.Background(), "volt_prime_set")
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(stats.Closed) != 2 || len(stats.Live) != 1 {
		t.Fatalf("closed=%d live=%d", len(stats.Closed), len(stats.Live))
	}
	recs := stats.Records()
	if recs[0].OrderType != "" || recs[2].OrderType != "sell" {
		t.Fatalf("order types passed through unexpectedly: %+v", recs)
	}
	if recs[1].ModRank == nil || *recs[1].ModRank != 0 {
		t.Fatalf("mod_rank 0 must survive decoding: %+v", recs[1])
	}
	if recs[0].Median == nil || *recs[0].Median != 46 || recs[0].OpenPrice != nil {
		t.Fatalf("optional aggregates decoded wrong: %+v", recs[0])
	}

	info := stats.Info
	if info.ItemID != "set1" || info.ModMaxRank == nil || *info.ModMaxRank != 3 {
		t.Fatalf("info = %+v", info)
	}
	if len(info.SetItems) != 2 || info.SetItems[0] != "part1" || len(info.Subtypes) != 1 {
		t.Fatalf("set items = %v subtypes = %v", info.SetItems, info.Subtypes)
	}
}

func TestParseItemInfoDropsSetItemsForParts(t *testing.T) {
	info := parseItemInfo(itemPayload{
		ID: "part1",
		ItemsInSet: []setPart{
			{ID: "part1", Tags: []string{"component"}},
			{ID: "set1", SetRoot: true},
		},
	})
	if len(info.SetItems) != 0 || len(info.Tags) != 1 || info.ModMaxRank != nil {
		t.Fatalf("info = %+v", info)
	}
}

func TestItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":{"items":[{"id":"a1","url_name":"volt_prime_set","item_name":"Volt Prime Set","thumb":"t.png"}]}}`))
	})
	items, err := c.Items(context.Background())
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Volt Prime Set" || items[0].URLName != "volt_prime_set" {
		t.Fatalf("items = %+v", items)
	}
}

func TestItemsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.Items(context.Background()); err == nil {
		t.Fatalf("expected catalog error")
	}
}
