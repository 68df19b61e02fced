package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"MarketEngine/internal/service/fetch"
	xhttp "MarketEngine/pkg/http"
)

const listing = `<html><body><h1>Index of /history/</h1>
<a href="../">../</a>
<a href="price_history_2024-05-02.json">price_history_2024-05-02.json</a>
<a href="price_history_2024-05-01.json">price_history_2024-05-01.json</a>
<a href="price_history_2024-05-01.json">duplicate</a>
<a href="notes.txt">notes.txt</a>
<a href="item_ids.json">item_ids.json</a>
</body></html>`

func newMirror(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history/":
			_, _ = w.Write([]byte(listing))
		case "/history/price_history_2024-05-01.json":
			_, _ = w.Write([]byte(`{"Volt Prime Set":[{"datetime":"2024-05-01T00:00:00+00:00","volume":4,"avg_price":120}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/market_data/translation_dict.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Old Name":"New Name"}`))
	})
	mux.HandleFunc("/market_data/item_ids.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Volt Prime Set":"abc"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := fetch.New(xhttp.NewClient(xhttp.WithTimeout(2*time.Second)),
		fetch.WithRetryPolicy(fetch.RetryPolicy{MaxAttempts: 1}))
	return NewClient(f, srv.URL+"/")
}

func TestHistoryDates(t *testing.T) {
	dates, err := newMirror(t).HistoryDates(context.Background())
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	if !reflect.DeepEqual(dates, []string{"2024-05-01", "2024-05-02"}) {
		t.Fatalf("dates = %v", dates)
	}
}

func TestHistory(t *testing.T) {
	c := newMirror(t)
	bundle, err := c.History(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	recs := bundle["Volt Prime Set"]
	if len(recs) != 1 || recs[0].Volume != 4 || recs[0].AvgPrice != 120 {
		t.Fatalf("bundle = %+v", bundle)
	}

	if _, err := c.History(context.Background(), "2024-05-02"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMarketData(t *testing.T) {
	c := newMirror(t)
	tr, err := c.Translations(context.Background())
	if err != nil || tr.Translate("Old Name") != "New Name" || tr.Translate("Other") != "Other" {
		t.Fatalf("translations = %v, %v", tr, err)
	}
	ids, err := c.ItemIDs(context.Background())
	if err != nil || ids["Volt Prime Set"] != "abc" {
		t.Fatalf("ids = %v, %v", ids, err)
	}
}

func TestJSONLinks(t *testing.T) {
	links, err := jsonLinks([]byte(listing))
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	want := []string{"item_ids.json", "price_history_2024-05-01.json", "price_history_2024-05-02.json"}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("links = %v", links)
	}
}
