package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/models"
	"github.com/prasenjit/go-mockserver/internal/parser"
	"github.com/prasenjit/go-mockserver/internal/proxy"
	"github.com/prasenjit/go-mockserver/internal/stats"
	"github.com/prasenjit/go-mockserver/internal/storage"
	"github.com/prasenjit/go-mockserver/internal/synth"
	"github.com/prasenjit/go-mockserver/internal/tracing"
)

const petsAPI = `
openapi: 3.0.0
info:
  title: Pets
  version: 2.1.0
  description: Pet store
paths:
  /pets:
    get:
      summary: List pets
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  type: object
                  properties:
                    id:
                      type: integer
                    name:
                      type: string
              example:
                - id: 1
                  name: rex
  /pets/{petId}:
    get:
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: integer
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  id:
                    type: integer
        '404':
          description: missing
`

func setupTestRouter(t *testing.T) (*Router, storage.Storage, *tracing.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStorage()
	loader := parser.NewLoader(store, "")
	collector := stats.NewCollector()
	tracingSvc := tracing.NewService(100)

	engine, err := proxy.NewEngine(store, loader, proxy.Options{
		Mock:             synth.DefaultMockOptions(),
		ProcessorEngine:  "js",
		ProcessorTimeout: time.Second,
		QueryTimeout:     time.Second,
	}, collector, tracingSvc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	r := NewRouter(Dependencies{
		Store:        store,
		Loader:       loader,
		Stats:        collector,
		Tracing:      tracingSvc,
		Proxy:        engine,
		QueryTimeout: time.Second,
		Logger:       zerolog.Nop(),
	})
	return r, store, tracingSvc
}

func do(r *Router, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func createPets(t *testing.T, r *Router) {
	t.Helper()
	w := do(r, http.MethodPost, "/_api/projects", map[string]any{
		"name":    "pets",
		"content": petsAPI,
		"tracing": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListProjects_Empty(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := do(r, http.MethodGet, "/_api/projects", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result []any
	decode(t, w, &result)
	if len(result) != 0 {
		t.Errorf("Expected empty array, got %d items", len(result))
	}
}

func TestCreateProject_Inline(t *testing.T) {
	r, store, _ := setupTestRouter(t)

	w := do(r, http.MethodPost, "/_api/projects", map[string]any{"name": "pets", "content": petsAPI})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var result struct {
		Project        models.Project `json:"project"`
		Title          string         `json:"title"`
		Version        string         `json:"version"`
		OperationCount int            `json:"operationCount"`
	}
	decode(t, w, &result)

	if result.Title != "Pets" || result.Version != "2.1.0" {
		t.Errorf("Unexpected document info: %+v", result)
	}
	if result.OperationCount != 2 {
		t.Errorf("Expected 2 operations, got %d", result.OperationCount)
	}
	if result.Project.OpenAPIFile != "pets.yaml" {
		t.Errorf("Expected stored document pets.yaml, got %q", result.Project.OpenAPIFile)
	}
	if result.Project.Description != "Pet store" {
		t.Errorf("Expected description from the document, got %q", result.Project.Description)
	}

	if _, err := store.ReadDocument("pets.yaml"); err != nil {
		t.Errorf("Expected document to be stored: %v", err)
	}

	w = do(r, http.MethodPost, "/_api/projects", map[string]any{"name": "pets", "content": petsAPI})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate, got %d", w.Code)
	}
}

func TestCreateProject_Invalid(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing name", map[string]any{"content": petsAPI}, http.StatusBadRequest},
		{"no document", map[string]any{"name": "x"}, http.StatusBadRequest},
		{"invalid document", map[string]any{"name": "x", "content": "openapi: 3.0.0\npaths: 7\n"}, http.StatusBadRequest},
		{"unreadable reference", map[string]any{"name": "x", "openApiFile": "/does/not/exist.yaml"}, http.StatusBadRequest},
		{"name with path", map[string]any{"name": "a/b", "content": petsAPI}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/_api/projects", tt.body)
			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateAndDeleteProject(t *testing.T) {
	r, store, traces := setupTestRouter(t)
	createPets(t, r)

	w := do(r, http.MethodPut, "/_api/projects/pets", map[string]any{"description": "changed", "tracing": false})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	p, _ := store.GetProject("pets")
	if p.Description != "changed" || p.Tracing {
		t.Errorf("Update not applied: %+v", p)
	}

	traces.RecordTrace(&models.Trace{Project: "pets"})

	w = do(r, http.MethodDelete, "/_api/projects/pets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, err := store.GetProject("pets"); err == nil {
		t.Error("Expected project to be deleted")
	}
	if _, err := store.ReadDocument("pets.yaml"); err == nil {
		t.Error("Expected stored document to be deleted")
	}
	if n := len(traces.GetTraces(&models.TraceFilter{Project: "pets"})); n != 0 {
		t.Errorf("Expected project traces to be cleared, got %d", n)
	}

	w = do(r, http.MethodDelete, "/_api/projects/pets", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	w = do(r, http.MethodGet, "/_api/projects/pets", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListOperationsAndPreview(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	createPets(t, r)

	w := do(r, http.MethodGet, "/_api/projects/pets/operations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var summary parser.Summary
	decode(t, w, &summary)
	if len(summary.Operations) != 2 || summary.Operations[0].Path != "/pets" {
		t.Errorf("Unexpected operations: %+v", summary.Operations)
	}

	w = do(r, http.MethodGet, "/_api/projects/pets/preview?path=/pets&method=GET", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var preview struct {
		Method    string                  `json:"method"`
		Responses []synth.ResponsePreview `json:"responses"`
	}
	decode(t, w, &preview)
	if preview.Method != "get" || len(preview.Responses) != 1 {
		t.Fatalf("Unexpected preview: %+v", preview)
	}
	if preview.Responses[0].Example == nil {
		t.Error("Expected literal example in preview")
	}

	w = do(r, http.MethodGet, "/_api/projects/pets/preview?path=/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	w = do(r, http.MethodGet, "/_api/projects/pets/preview", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestProcessors(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	createPets(t, r)

	w := do(r, http.MethodPost, "/_api/processors", map[string]any{
		"project": "pets", "endpoint": "/pets", "method": "GET", "type": "pre",
		"code": "return null;",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var pre models.Processor
	decode(t, w, &pre)
	if pre.Method != "get" || !pre.Enabled || pre.ID == 0 {
		t.Errorf("Unexpected processor: %+v", pre)
	}

	bad := []map[string]any{
		{"project": "pets", "endpoint": "/pets", "method": "get", "type": "later"},
		{"project": "pets", "endpoint": "/pets", "method": "get", "type": "expectation", "code": "{"},
	}
	for _, body := range bad {
		if w := do(r, http.MethodPost, "/_api/processors", body); w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %v, got %d", body, w.Code)
		}
	}
	w = do(r, http.MethodPost, "/_api/processors", map[string]any{
		"project": "ghost", "endpoint": "/pets", "method": "get", "type": "pre",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown project, got %d", w.Code)
	}

	w = do(r, http.MethodPut, "/_api/processors/1", map[string]any{"enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	w = do(r, http.MethodGet, "/_api/processors/1", nil)
	var updated models.Processor
	decode(t, w, &updated)
	if updated.Enabled {
		t.Error("Expected processor to be disabled")
	}

	w = do(r, http.MethodGet, "/_api/processors?project=pets&type=pre", nil)
	var list []models.Processor
	decode(t, w, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 processor, got %d", len(list))
	}

	if w := do(r, http.MethodGet, "/_api/processors/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/_api/processors/1", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/_api/processors/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestSetExpectMode(t *testing.T) {
	r, store, _ := setupTestRouter(t)
	createPets(t, r)

	expectation := `{"name":"one","mockResponse":{"id":1},"conditions":[]}`
	store.CreateProcessor(&models.Processor{Project: "pets", Endpoint: "/pets", Method: "get", Type: models.ProcessorPre, Code: "1", Enabled: true})
	store.CreateProcessor(&models.Processor{Project: "pets", Endpoint: "/pets", Method: "get", Type: models.ProcessorExpectation, Code: expectation, Enabled: false})

	w := do(r, http.MethodPut, "/_api/expect-mode", map[string]any{
		"project": "pets", "endpoint": "/pets", "method": "get", "enabled": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result struct {
		Enabled bool    `json:"enabled"`
		Changed []int64 `json:"changed"`
	}
	decode(t, w, &result)
	if !result.Enabled || len(result.Changed) != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}

	w = do(r, http.MethodPut, "/_api/expect-mode", map[string]any{
		"project": "pets", "endpoint": "/pets", "method": "get", "enabled": true,
	})
	decode(t, w, &result)
	if len(result.Changed) != 0 {
		t.Errorf("Expected nothing to change, got %v", result.Changed)
	}
}

func TestMappings(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	createPets(t, r)

	w := do(r, http.MethodPut, "/_api/mappings", map[string]any{
		"project": "pets", "endpoint": "/pets", "method": "GET",
		"sql": "SELECT * FROM pets", "jsonPath": "$",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/_api/mappings?project=pets&endpoint=/pets&method=get", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var m models.SQLMapping
	decode(t, w, &m)
	if m.SQL != "SELECT * FROM pets" || m.Method != "get" {
		t.Errorf("Unexpected mapping: %+v", m)
	}

	w = do(r, http.MethodGet, "/_api/mappings?project=pets", nil)
	var all []models.SQLMapping
	decode(t, w, &all)
	if len(all) != 1 {
		t.Errorf("Expected 1 mapping, got %d", len(all))
	}

	if w := do(r, http.MethodGet, "/_api/mappings", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/_api/mappings?project=pets&endpoint=/pets&method=get", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/_api/mappings?project=pets&endpoint=/pets&method=get", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestMockRouteFeedsStatsAndTraces(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	createPets(t, r)

	w := do(r, http.MethodGet, "/mock/pets/pets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if stage := w.Header().Get("X-Mock-Stage"); stage != "example" {
		t.Errorf("Expected example stage, got %q", stage)
	}
	if !strings.Contains(w.Body.String(), "rex") {
		t.Errorf("Expected literal example body, got %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/mock/pets/pets/12?__status=404", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 override, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/mock/ghost/pets", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown project, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/_api/stats/projects/pets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var ps models.ProjectStats
	decode(t, w, &ps)
	if ps.TotalRequests != 2 {
		t.Errorf("Expected 2 requests, got %d", ps.TotalRequests)
	}

	w = do(r, http.MethodGet, "/_api/traces?project=pets&limit=1", nil)
	var traces []models.Trace
	decode(t, w, &traces)
	if len(traces) != 1 || traces[0].Endpoint != "/pets/{petId}" {
		t.Fatalf("Unexpected traces: %+v", traces)
	}

	if w := do(r, http.MethodGet, "/_api/traces/"+traces[0].ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/_api/traces/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	do(r, http.MethodDelete, "/_api/traces", nil)
	w = do(r, http.MethodGet, "/_api/traces", nil)
	decode(t, w, &traces)
	if len(traces) != 0 {
		t.Errorf("Expected traces to be cleared, got %d", len(traces))
	}

	do(r, http.MethodPost, "/_api/stats/reset", nil)
	w = do(r, http.MethodGet, "/_api/stats", nil)
	var gs models.GlobalStats
	decode(t, w, &gs)
	if gs.TotalRequests != 0 || gs.ActiveProjects != 1 {
		t.Errorf("Unexpected global stats: %+v", gs)
	}
}

func TestHealthCheck(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := do(r, http.MethodGet, "/_api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result map[string]any
	decode(t, w, &result)
	if result["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", result["status"])
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := do(r, http.MethodOptions, "/_api/projects", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
