package httpmiddleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func findLog(t *testing.T, buf *bytes.Buffer, msg string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			break
		}
		if m["msg"] == msg {
			return m
		}
	}
	t.Fatalf("did not find %q log entry\nraw=%q", msg, buf.String())
	return nil
}

func TestReqID_PreservesIncoming(t *testing.T) {
	h := ReqID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get(RequestIDHeader)))
	}))

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("response X-Request-ID: got %q, want %q", got, "abc")
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "abc" {
		t.Fatalf("body: got %q, want %q", got, "abc")
	}
}

func TestReqID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := ReqID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/id", nil))

	got := rec.Header().Get(RequestIDHeader)
	if got == "" {
		t.Fatal("response X-Request-ID is empty")
	}
	if seen != got {
		t.Fatalf("handler saw %q, response has %q", seen, got)
	}
}

func TestAccessLog_EmitsJSONFields(t *testing.T) {
	buf := captureLogs(t)

	h := ReqID(Recovery(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))))

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	m := findLog(t, buf, "access")
	if m["request_id"] != "abc" {
		t.Fatalf("request_id: got %v, want %q", m["request_id"], "abc")
	}
	if m["method"] != http.MethodGet {
		t.Fatalf("method: got %v", m["method"])
	}
	if m["path"] != "/get" {
		t.Fatalf("path: got %v", m["path"])
	}
	if m["status"] != float64(http.StatusTeapot) {
		t.Fatalf("status: got %v", m["status"])
	}
	if m["bytes"] != float64(2) {
		t.Fatalf("bytes: got %v", m["bytes"])
	}
}

func TestAccessLog_RedactsDownloadSecret(t *testing.T) {
	buf := captureLogs(t)
	secret := strings.Repeat("a", 30)

	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/d/"+secret, nil))

	if strings.Contains(buf.String(), secret) {
		t.Fatalf("secret leaked into access log: %s", buf.String())
	}
	if m := findLog(t, buf, "access"); m["path"] != "/d/:secret" {
		t.Fatalf("path: got %v", m["path"])
	}
}

func TestRecovery_Returns500Envelope(t *testing.T) {
	buf := captureLogs(t)

	h := ReqID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != http.StatusInternalServerError || body.RequestID != "abc" {
		t.Fatalf("body: got %+v", body)
	}

	m := findLog(t, buf, "panic recovered")
	if m["panic"] != "boom" {
		t.Fatalf("panic: got %v", m["panic"])
	}
	if s, _ := m["stack"].(string); !strings.Contains(s, "Traceback") {
		t.Fatalf("stack: got %v", m["stack"])
	}
}

func TestRecovery_KeepsWrittenStatus(t *testing.T) {
	_ = captureLogs(t)

	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusAccepted)
	}
}
