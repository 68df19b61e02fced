package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"MarketEngine/internal/domain/models"
	"MarketEngine/internal/repository"
	"MarketEngine/internal/resolver"
	"MarketEngine/pkg/database"
	xhttp "MarketEngine/pkg/http"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*xhttp.Server, *repository.GormStore) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(
		database.WithDriver(database.DriverSQLite),
		database.WithDSN(filepath.Join(t.TempDir(), "ops.db")),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	store := repository.NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.UpsertItems(ctx, []models.Item{
		{ID: "v", Name: "Volt Prime Set", URLName: "volt_prime_set"},
		{ID: "m", Name: "Mesa Prime Set", URLName: "mesa_prime_set"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := resolver.New(store, 16)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if err := res.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(NewOpsHandler(nil, res, store),
		xhttp.WithRegistry(reg, reg),
		xhttp.WithHealthCheck("store", func(context.Context) error { return nil }),
	)
	return srv, store
}

func do(t *testing.T, srv *xhttp.Server, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestResolve(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
		found  bool
		id     string
	}{
		{"exact", "/api/items/resolve?q=volt+prime+set", http.StatusOK, true, "v"},
		{"unrelated", "/api/items/resolve?q=zzzzqqqq", http.StatusOK, false, ""},
		{"too short", "/api/items/resolve?q=v", http.StatusBadRequest, false, ""},
		{"missing", "/api/items/resolve", http.StatusBadRequest, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var got models.ResolveResponse
			if err := json.Unmarshal(env.Data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Found != tt.found {
				t.Fatalf("found = %v (%+v)", got.Found, got)
			}
			if tt.found && (got.Item == nil || got.Item.ID != tt.id) {
				t.Fatalf("item = %+v", got.Item)
			}
		})
	}
}

func TestItemAliasLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	steps := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"unknown item", http.MethodPost, `{"item_id":"nope","alias":"Sparky"}`, http.StatusNotFound},
		{"add", http.MethodPost, `{"item_id":"v","alias":"Sparky"}`, http.StatusCreated},
		{"taken", http.MethodPost, `{"item_id":"m","alias":"sparky"}`, http.StatusConflict},
		{"invalid", http.MethodPost, `{"item_id":"v"}`, http.StatusBadRequest},
		{"remove", http.MethodDelete, `{"alias":"SPARKY"}`, http.StatusNoContent},
		{"remove again", http.MethodDelete, `{"alias":"sparky"}`, http.StatusNotFound},
	}
	for _, st := range steps {
		rec, _ := do(t, srv, st.method, "/api/aliases/items", st.body)
		if rec.Code != st.status {
			t.Fatalf("%s: status = %d body=%s", st.name, rec.Code, rec.Body.String())
		}
		if st.name == "add" {
			_, env := do(t, srv, http.MethodGet, "/api/items/resolve?q=sparky", "")
			var got models.ResolveResponse
			_ = json.Unmarshal(env.Data, &got)
			if !got.Found || got.Item.ID != "v" {
				t.Fatalf("alias not resolvable: %+v", got)
			}
		}
	}
}

func TestWordAlias(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"word":"sparkle","alias":"volt"}`
	if rec, _ := do(t, srv, http.MethodPost, "/api/aliases/words", body); rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, srv, http.MethodPost, "/api/aliases/words", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
}

func TestCheckpoint(t *testing.T) {
	srv, store := newTestServer(t)

	_, env := do(t, srv, http.MethodGet, "/api/checkpoint", "")
	var got models.CheckpointResponse
	if err := json.Unmarshal(env.Data, &got); err != nil || !got.Empty {
		t.Fatalf("empty checkpoint = %+v, %v", got, err)
	}

	day, _ := models.ParseDate("2024-05-02")
	recs := []models.StatisticRecord{{ItemID: "v", Datetime: day, OrderType: models.OrderClosed, Volume: 1}}
	if _, err := store.InsertStatistics(context.Background(), recs, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, env = do(t, srv, http.MethodGet, "/api/checkpoint", "")
	got = models.CheckpointResponse{}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Empty || got.Checkpoint != "2024-05-02" || got.Records != 1 {
		t.Fatalf("checkpoint = %+v", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec, _ := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	rec, _ := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "marketengine_http_requests_total") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}
