package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/store"
)

// testLogger returns a logger for tests that discards routine output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{API: config.APIConfig{Port: 8080}}
}

// mockScheduler implements WatchScheduler for tests.
type mockScheduler struct {
	running    bool
	statuses   []WatchStatus
	triggerErr error
	triggered  int
}

func (m *mockScheduler) Status() []WatchStatus { return m.statuses }
func (m *mockScheduler) IsRunning() bool       { return m.running }
func (m *mockScheduler) TriggerScan() error {
	if m.triggerErr != nil {
		return m.triggerErr
	}
	m.triggered++
	return nil
}

// mockImporter implements ArchiveImporter for tests.
type mockImporter struct {
	summary *importer.Summary
	err     error
	gotCase string
}

func (m *mockImporter) Import(_ context.Context, caseID, _ string, _ importer.Options) (*importer.Summary, error) {
	m.gotCase = caseID
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

// mockStore implements VaultStore for tests.
type mockStore struct {
	cases       []*store.Case
	imports     []*store.Import
	attachments map[int64]*store.AttachmentView
	stats       *store.Stats
}

func (m *mockStore) ListCases() ([]*store.Case, error) { return m.cases, nil }

func (m *mockStore) GetCase(id string) (*store.Case, error) {
	for _, c := range m.cases {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CreateCase(name, subject, notes string) (*store.Case, error) {
	c := &store.Case{ID: "case-" + name, Name: name}
	m.cases = append(m.cases, c)
	return c, nil
}

func (m *mockStore) ListImports(caseID string) ([]*store.Import, error) {
	return m.imports, nil
}

func (m *mockStore) GetAttachment(id int64) (*store.AttachmentView, error) {
	return m.attachments[id], nil
}

func (m *mockStore) GetStats() (*store.Stats, error) {
	if m.stats == nil {
		return &store.Stats{}, nil
	}
	return m.stats, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, nil, nil, testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.API.Key = "secret-key"
	srv := NewServer(cfg, nil, nil, nil, nil, testLogger())

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"no auth", "", http.StatusUnauthorized},
		{"wrong key", "wrong-key", http.StatusUnauthorized},
		{"correct key", "secret-key", http.StatusServiceUnavailable}, // 503: no store wired
		{"bearer prefix", "Bearer secret-key", http.StatusServiceUnavailable},
		{"x-api-key header", "secret-key", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stats", nil)
			if tt.authHeader != "" {
				if tt.name == "x-api-key header" {
					req.Header.Set("X-API-Key", tt.authHeader)
				} else {
					req.Header.Set("Authorization", tt.authHeader)
				}
			}
			w := httptest.NewRecorder()

			srv.Router().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	sched := &mockScheduler{running: true}
	srv := NewServer(testConfig(), nil, nil, nil, sched, testLogger())

	// Should allow access without auth when no key is configured
	req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when no API key configured", w.Code, http.StatusOK)
	}
}

func TestNilDependencies503(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, nil, nil, testLogger())

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/stats"},
		{"GET", "/api/v1/cases"},
		{"POST", "/api/v1/cases"},
		{"GET", "/api/v1/cases/abc"},
		{"GET", "/api/v1/cases/abc/imports"},
		{"POST", "/api/v1/cases/abc/imports"},
		{"GET", "/api/v1/cases/abc/conversations"},
		{"GET", "/api/v1/cases/abc/search?q=test"},
		{"GET", "/api/v1/cases/abc/stats"},
		{"GET", "/api/v1/conversations/1/messages"},
		{"GET", "/api/v1/attachments/1"},
		{"GET", "/api/v1/scheduler/status"},
		{"POST", "/api/v1/scheduler/scan"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s %s: status = %d, want %d", ep.method, ep.path, w.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	sched := &mockScheduler{
		running: true,
		statuses: []WatchStatus{
			{
				Dir:      "/evidence/incoming",
				Case:     "operation-north",
				Schedule: "*/15 * * * *",
				NextRun:  time.Now().Add(time.Hour),
			},
		},
	}
	srv := NewServer(testConfig(), nil, nil, nil, sched, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SchedulerStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Running {
		t.Error("expected scheduler to be running")
	}
	if len(resp.Watches) != 1 || resp.Watches[0].Case != "operation-north" {
		t.Errorf("watches = %+v", resp.Watches)
	}
}

func TestTriggerScanEndpoint(t *testing.T) {
	sched := &mockScheduler{running: true}
	srv := NewServer(testConfig(), nil, nil, nil, sched, testLogger())

	req := httptest.NewRequest("POST", "/api/v1/scheduler/scan", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if sched.triggered != 1 {
		t.Errorf("triggered = %d, want 1", sched.triggered)
	}

	sched.triggerErr = errors.New("scan already running")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/scheduler/scan", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func multipartArchive(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadArchive(t *testing.T) {
	st := &mockStore{cases: []*store.Case{{ID: "c1", Name: "alpha"}}}
	imp := &mockImporter{summary: &importer.Summary{
		ImportID:     7,
		CaseID:       "c1",
		DocumentName: "records.html",
		Layout:       "structural_id",
		Messages:     5,
	}}
	srv := NewServer(testConfig(), st, nil, imp, nil, testLogger())

	body, ctype := multipartArchive(t, "archive", "export.zip", []byte("PK\x03\x04fake"))
	req := httptest.NewRequest("POST", "/api/v1/cases/c1/imports", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ImportID != 7 || resp.Messages != 5 {
		t.Errorf("response = %+v", resp)
	}
	if imp.gotCase != "c1" {
		t.Errorf("imported into case %q, want c1", imp.gotCase)
	}
}

func TestUploadArchiveErrors(t *testing.T) {
	st := &mockStore{cases: []*store.Case{{ID: "c1", Name: "alpha"}}}

	t.Run("unknown case", func(t *testing.T) {
		srv := NewServer(testConfig(), st, nil, &mockImporter{}, nil, testLogger())
		body, ctype := multipartArchive(t, "archive", "export.zip", []byte("zip"))
		req := httptest.NewRequest("POST", "/api/v1/cases/nope/imports", body)
		req.Header.Set("Content-Type", ctype)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("wrong field name", func(t *testing.T) {
		srv := NewServer(testConfig(), st, nil, &mockImporter{}, nil, testLogger())
		body, ctype := multipartArchive(t, "file", "export.zip", []byte("zip"))
		req := httptest.NewRequest("POST", "/api/v1/cases/c1/imports", body)
		req.Header.Set("Content-Type", ctype)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("duplicate archive", func(t *testing.T) {
		imp := &mockImporter{err: importer.ErrDuplicateArchive}
		srv := NewServer(testConfig(), st, nil, imp, nil, testLogger())
		body, ctype := multipartArchive(t, "archive", "export.zip", []byte("zip"))
		req := httptest.NewRequest("POST", "/api/v1/cases/c1/imports", body)
		req.Header.Set("Content-Type", ctype)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("parse failure", func(t *testing.T) {
		imp := &mockImporter{err: errors.New("no records document in archive")}
		srv := NewServer(testConfig(), st, nil, imp, nil, testLogger())
		body, ctype := multipartArchive(t, "archive", "export.zip", []byte("zip"))
		req := httptest.NewRequest("POST", "/api/v1/cases/c1/imports", body)
		req.Header.Set("Content-Type", ctype)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}
	})
}

func TestSecurityValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.APIConfig
		wantError bool
	}{
		{"loopback no key", config.APIConfig{BindAddress: "127.0.0.1"}, false},
		{"loopback 127.0.0.2 no key", config.APIConfig{BindAddress: "127.0.0.2"}, false},
		{"loopback 127.255.255.254 no key", config.APIConfig{BindAddress: "127.255.255.254"}, false},
		{"ipv6 loopback no key", config.APIConfig{BindAddress: "::1"}, false},
		{"localhost no key", config.APIConfig{BindAddress: "localhost"}, false},
		{"empty addr no key", config.APIConfig{BindAddress: ""}, false},
		{"non-loopback with key", config.APIConfig{BindAddress: "0.0.0.0", Key: "secret"}, false},
		{"non-loopback no key", config.APIConfig{BindAddress: "0.0.0.0"}, true},
		{"non-loopback ipv6 no key", config.APIConfig{BindAddress: "::"}, true},
		{"non-loopback insecure override", config.APIConfig{BindAddress: "0.0.0.0", AllowInsecure: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSecure()
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateSecure() error = %v, wantError = %v", err, tt.wantError)
			}
		})
	}
}

func TestCORSFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.API.CORSOrigins = []string{"http://localhost:3000", "http://example.com"}
	srv := NewServer(cfg, nil, nil, nil, nil, testLogger())

	// Request from allowed origin
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("expected CORS header for allowed origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	// Request from disallowed origin
	req2 := httptest.NewRequest("GET", "/health", nil)
	req2.Header.Set("Origin", "http://evil.com")
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)

	if w2.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", w2.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, nil, nil, testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header when no origins configured, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
