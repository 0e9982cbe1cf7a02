package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	apimw "github.com/hamed0406/livemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/livemonitor/internal/repo/memory"
	"github.com/hamed0406/livemonitor/internal/scheduler"
)

// ---- test helpers ----

type call struct {
	op    string
	id    domain.TargetID
	uri   string
	iv    int64
	patch domain.TargetPatch
}

type fakeEngine struct {
	mu        sync.Mutex
	calls     []call
	updateErr error
}

func (f *fakeEngine) OnCreate(id domain.TargetID, uri string, iv int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "create", id: id, uri: uri, iv: iv})
	return nil
}

func (f *fakeEngine) OnUpdate(id domain.TargetID, p domain.TargetPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "update", id: id, patch: p})
	return f.updateErr
}

func (f *fakeEngine) OnDelete(id domain.TargetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", id: id})
}

func (f *fakeEngine) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeEngine) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func setup(t *testing.T) (*httptest.Server, *fakeEngine, *memory.Store) {
	t.Helper()
	store := memory.New()
	eng := &fakeEngine{}
	srv := NewServer(zap.NewNop(), store, eng)
	srv.Targets, srv.Loops, srv.Observers = fixedLen(3), fixedLen(2), fixedLen(1)

	h := srv.Router(RouterOptions{
		Keys: apimw.Keys{
			Public: []string{"pub_test"},
			Admin:  []string{"adm_test"},
		},
		// very high rate limits to avoid flakiness in tests
		PublicRPM: 10_000, PublicBurst: 10_000,
		AdminRPM: 10_000, AdminBurst: 10_000,
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, eng, store
}

func do(t *testing.T, method, url, key, body string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(method, url, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

const validBody = `{"name":"example","uri":"https://EXAMPLE.com/","monitorInterval":1000,"thresholds":[{"lowerLimit":0,"upperLimit":300}]}`

// ---- tests ----

func TestCreateService_OK_Duplicate_Invalid(t *testing.T) {
	ts, eng, _ := setup(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/services", "adm_test", validBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", resp.StatusCode, body)
	}
	var svc domain.Service
	if err := json.Unmarshal(body, &svc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if svc.ID == "" || svc.URI != "https://example.com" || svc.Name != "example" || len(svc.Thresholds) != 1 {
		t.Fatalf("unexpected service: %+v", svc)
	}
	if calls := eng.snapshot(); len(calls) != 1 || calls[0].op != "create" || calls[0].id != svc.ID || calls[0].iv != 1000 {
		t.Fatalf("engine not told about create: %+v", calls)
	}

	// Duplicate (after normalization) -> 409
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/services", "adm_test",
		`{"uri":"https://example.com:443","monitorInterval":5,"thresholds":[{"lowerLimit":0,"upperLimit":1}]}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp.StatusCode)
	}

	// Every validation problem is reported at once
	resp, body = do(t, http.MethodPost, ts.URL+"/api/services", "adm_test",
		`{"uri":"ftp://bad","monitorInterval":0,"thresholds":[{"lowerLimit":5,"upperLimit":5}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid payload, got %d", resp.StatusCode)
	}
	var verr struct {
		Details []string `json:"details"`
	}
	_ = json.Unmarshal(body, &verr)
	if len(verr.Details) != 3 {
		t.Fatalf("want 3 validation details, got %v", verr.Details)
	}

	// Unknown field and missing thresholds
	if resp, _ := do(t, http.MethodPost, ts.URL+"/api/services", "adm_test", `{"url":"https://a.test"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on unknown field, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, ts.URL+"/api/services", "adm_test", `{"uri":"https://a.test","monitorInterval":1}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 without thresholds, got %d", resp.StatusCode)
	}
	if len(eng.ops()) != 1 {
		t.Fatalf("failed requests must not reach the engine: %v", eng.ops())
	}
}

func TestCreateService_AuthAndBodyLimit(t *testing.T) {
	ts, _, _ := setup(t)

	if resp, _ := do(t, http.MethodPost, ts.URL+"/api/services", "pub_test", validBody); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key must not write, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, ts.URL+"/api/services", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key must be 401, got %d", resp.StatusCode)
	}

	h := NewServer(zap.NewNop(), memory.New(), &fakeEngine{}).Router(RouterOptions{})
	huge := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/services", strings.NewReader(huge))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

func TestListUpdateDelete(t *testing.T) {
	ts, eng, _ := setup(t)

	_, body := do(t, http.MethodPost, ts.URL+"/api/services", "adm_test", validBody)
	var svc domain.Service
	_ = json.Unmarshal(body, &svc)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/services", "pub_test", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 list, got %d", resp.StatusCode)
	}
	var list []domain.Service
	if err := json.Unmarshal(body, &list); err != nil || len(list) != 1 || list[0].ID != svc.ID {
		t.Fatalf("unexpected list: %s err=%v", body, err)
	}

	resp, body = do(t, http.MethodPatch, ts.URL+"/api/services/"+string(svc.ID), "adm_test", `{"monitorInterval":2500}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 patch, got %d: %s", resp.StatusCode, body)
	}
	var upd domain.Service
	_ = json.Unmarshal(body, &upd)
	if upd.MonitorInterval != 2500 || upd.URI != "https://example.com" {
		t.Fatalf("unexpected update: %+v", upd)
	}
	calls := eng.snapshot()
	last := calls[len(calls)-1]
	if last.op != "update" || last.patch.IntervalMS == nil || *last.patch.IntervalMS != 2500 || last.patch.URI != nil {
		t.Fatalf("engine got wrong patch: %+v", last)
	}

	if resp, _ := do(t, http.MethodPatch, ts.URL+"/api/services/"+string(svc.ID), "adm_test", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty update must be 400, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPatch, ts.URL+"/api/services/not-a-uuid", "adm_test", `{"name":"x"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-uuid id must be 400, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPatch, ts.URL+"/api/services/"+string(svc.ID), "adm_test", `{"thresholds":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty thresholds must be 400, got %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodDelete, ts.URL+"/api/services/"+string(svc.ID), "adm_test", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), string(svc.ID)) {
		t.Fatalf("want 200 with id, got %d: %s", resp.StatusCode, body)
	}
	if ops := eng.ops(); ops[len(ops)-1] != "delete" {
		t.Fatalf("engine not told about delete: %v", ops)
	}
	if resp, _ := do(t, http.MethodDelete, ts.URL+"/api/services/"+string(svc.ID), "adm_test", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete must be 404, got %d", resp.StatusCode)
	}
}

func TestUpdateService_UnmonitoredFallsBackToCreate(t *testing.T) {
	ts, eng, _ := setup(t)
	_, body := do(t, http.MethodPost, ts.URL+"/api/services", "adm_test", validBody)
	var svc domain.Service
	_ = json.Unmarshal(body, &svc)

	eng.mu.Lock()
	eng.updateErr = scheduler.ErrUnknownTarget
	eng.mu.Unlock()
	resp, _ := do(t, http.MethodPatch, ts.URL+"/api/services/"+string(svc.ID), "adm_test", `{"name":"renamed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	calls := eng.snapshot()
	if len(calls) != 3 || calls[1].op != "update" || calls[2].op != "create" || calls[2].uri != "https://example.com" {
		t.Fatalf("want update then create, got %+v", calls)
	}
}

func TestHealth(t *testing.T) {
	ts, _, _ := setup(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var got map[string]any
	_ = json.Unmarshal(body, &got)
	if got["status"] != "ok" || got["targets"] != float64(3) || got["loops"] != float64(2) || got["observers"] != float64(1) {
		t.Fatalf("unexpected health: %s", body)
	}
}

func TestHealth_HostAllowList(t *testing.T) {
	srv := NewServer(zap.NewNop(), memory.New(), &fakeEngine{})
	h := srv.Router(RouterOptions{HealthAllowedHosts: []string{"monitor.internal"}, Production: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Host = "evil.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}

	req.Host = "monitor.internal:8080"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("production mode should set security headers")
	}
}
