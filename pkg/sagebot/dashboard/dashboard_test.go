package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

func newTestServer(t *testing.T, secret string) *Server {
	t.Helper()
	db, err := store.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Secret: secret}, store.NewCounterStore(db), store.NewPatternStore(db), logger)
}

func doRequest(t *testing.T, h http.Handler, method, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if secret != "" {
		req.Header.Set("X-Dashboard-Secret", secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthUnauthenticated(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp["ok"])
	}
	if resp["timestamp"] == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestUnsetSecretReturns500(t *testing.T) {
	h := newTestServer(t, "").Handler()

	rec := doRequest(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 with unset secret, got %d", rec.Code)
	}
}

func TestWrongSecretReturns401(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodGet, "/", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with missing secret, got %d", rec.Code)
	}
}

func TestSecretViaQueryParam(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodGet, "/?secret=s3cret", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query secret, got %d", rec.Code)
	}
}

func TestCountersEndpoint(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	if err := srv.counters.Bump(store.CounterAIRequests); err != nil {
		t.Fatalf("bump: %v", err)
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/", "s3cret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Counters map[string]int64 `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Counters[store.CounterAIRequests] != 1 {
		t.Errorf("expected ai_requests=1, got %d", resp.Counters[store.CounterAIRequests])
	}
}

func TestTeachAddAndList(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodPost, "/teach/g1", "s3cret",
		teachRequest{Trigger: "Hello", Response: "hi {user}"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected a non-zero pattern id")
	}

	rec = doRequest(t, h, http.MethodGet, "/teach/g1", "s3cret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Patterns []store.Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(listed.Patterns))
	}
}

func TestTeachListEmptyReturnsArray(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodGet, "/teach/g1", "s3cret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"patterns":[]`)) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestTeachAddValidation(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodPost, "/teach/g1", "s3cret",
		teachRequest{Trigger: "", Response: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on missing trigger, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/teach/g1", "s3cret",
		teachRequest{Trigger: "hello", Response: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on missing response, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/teach/g1", "s3cret",
		teachRequest{Trigger: "   ", Response: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on whitespace trigger, got %d", rec.Code)
	}
}

func TestTeachRemove(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	id, err := srv.patterns.Add("g1", "hello", "hi")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	h := srv.Handler()

	path := fmt.Sprintf("/teach/g1/%d", id)
	rec := doRequest(t, h, http.MethodDelete, path, "s3cret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, path, "s3cret", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, "/teach/g1/notanumber", "s3cret", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on bad id, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestServer(t, "s3cret").Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header, got %q", got)
	}
}

func TestCompareSecrets(t *testing.T) {
	if !compareSecrets("abc", "abc") {
		t.Error("expected equal secrets to match")
	}
	if compareSecrets("abc", "abd") {
		t.Error("expected different secrets not to match")
	}
	if compareSecrets("", "abc") {
		t.Error("expected empty provided secret not to match")
	}
}
