package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/media"
	"github.com/GyroZepelix/cornerstone/internal/schema"
	"github.com/GyroZepelix/cornerstone/internal/server"
)

// fixedNow is the clock of every test environment.
var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeMedia map[int64]map[string]any

func (f fakeMedia) LookupMedia(_ context.Context, ids []int64) (map[int64]map[string]any, error) {
	out := map[int64]map[string]any{}
	for _, id := range ids {
		if m, ok := f[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

var testAssets = fakeMedia{
	10: {
		"id":   int64(10),
		"name": "tower.png",
		"url":  "/uploads/tower.png",
		"formats": map[string]any{
			"thumbnail": map[string]any{"url": "/uploads/thumbnail_tower.png", "width": 245},
		},
	},
	11: {"id": int64(11), "name": "lobby.png", "url": "/uploads/lobby.png"},
	12: {"id": int64(12), "name": "remote.png", "url": "https://cdn.example.com/remote.png"},
}

// recordingStore captures the last FindMany query per content type.
type recordingStore struct {
	entity.Store

	mu   sync.Mutex
	last map[string]entity.Query
}

func (s *recordingStore) FindMany(ctx context.Context, contentType string, q entity.Query) (entity.Page, error) {
	s.mu.Lock()
	if s.last == nil {
		s.last = map[string]entity.Query{}
	}
	s.last[contentType] = q
	s.mu.Unlock()
	return s.Store.FindMany(ctx, contentType, q)
}

func (s *recordingStore) lastQuery(contentType string) entity.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[contentType]
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

type testEnv struct {
	registry *Registry
	store    *entity.MemoryStore
	rec      *recordingStore
	audit    *recordingAudit
	router   chi.Router
	ids      map[string]int64
}

func loadTestSchemas(t *testing.T) []schema.ContentType {
	t.Helper()
	schemas, err := schema.LoadSchemas("../../schema")
	if err != nil {
		t.Fatalf("loading schemas: %v", err)
	}
	return schemas
}

// newTestEnv builds a registry over a seeded memory store:
//
//	categories: residential, commercial (category), completed (status)
//	projects:   Tower (commercial, featured), Loft (residential, completed,
//	            isCommercial), Plaza (commercial), Shed (no category)
func newTestEnv(t *testing.T, abs media.Absolutizer) *testEnv {
	t.Helper()
	schemas := loadTestSchemas(t)
	store := entity.NewMemoryStore(schemas, testAssets)
	rec := &recordingStore{Store: store}
	auditLog := &recordingAudit{}

	env := &testEnv{store: store, rec: rec, audit: auditLog, ids: map[string]int64{}}

	create := func(key, contentType string, data map[string]any) {
		e, err := store.Create(context.Background(), contentType, data)
		if err != nil {
			t.Fatalf("seeding %s %s: %v", contentType, key, err)
		}
		env.ids[key] = e["id"].(int64)
	}

	create("residential", "category", map[string]any{"name": "Residential", "slug": "residential", "type": "category"})
	create("commercial", "category", map[string]any{"name": "Commercial", "slug": "commercial", "type": "category"})
	create("completed", "category", map[string]any{"name": "Completed", "slug": "completed", "type": "status"})

	create("tower", "project", map[string]any{
		"title": "Tower", "isFeatured": true, "image": 10, "gallery": []any{11, 12},
		"categories": []any{env.ids["commercial"]},
	})
	create("loft", "project", map[string]any{
		"title": "Loft", "isCommercial": true,
		"categories": []any{env.ids["residential"], env.ids["completed"]},
	})
	create("plaza", "project", map[string]any{
		"title": "Plaza", "categories": []any{env.ids["commercial"]},
	})
	create("shed", "project", map[string]any{"title": "Shed"})

	env.registry = NewRegistry(Deps{
		Store:   rec,
		Schemas: schemas,
		Media:   abs,
		Audit:   auditLog,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return fixedNow },
	})

	h := NewHandler(env.registry)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/{route}", h.Find)
		r.Post("/{route}", h.Create)
		r.Put("/{route}", h.Update)
		r.Get("/{route}/{id}", h.FindOne)
		r.Put("/{route}/{id}", h.Update)
	})
	env.router = r
	return env
}

// apiResponse is the decoded body of any API response.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error struct {
		Status  int    `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func (env *testEnv) do(t *testing.T, method, target string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, target, err)
	}
	return rec.Code, resp
}

func decodeList(t *testing.T, raw json.RawMessage) []map[string]any {
	t.Helper()
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decoding list %s: %v", raw, err)
	}
	return items
}

func decodeItem(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		t.Fatalf("decoding item %s: %v", raw, err)
	}
	return item
}

func titles(items []map[string]any) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i], _ = item["title"].(string)
	}
	return out
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// errorResponse renders err the way the HTTP layer does.
func errorResponse(t *testing.T, err error) (int, apiResponse) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	rec := httptest.NewRecorder()
	server.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)
	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return rec.Code, resp
}
