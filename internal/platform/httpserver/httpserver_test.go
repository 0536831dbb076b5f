package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestWrap_RequestID(t *testing.T) {
	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Wrap(discardLogger(), "cascade", mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/", nil))
	if got := rec.Header().Get("X-Request-Id"); got == "" || got != seen {
		t.Fatalf("X-Request-Id=%q, context=%q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "rid-123" || seen != "rid-123" {
		t.Fatalf("X-Request-Id=%q, context=%q, want rid-123", got, seen)
	}
}

func TestWrap_RecoversPanic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	h := Wrap(discardLogger(), "cascade", mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://example.test/specs/ImageDelete/deletes", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type=%q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestReadyzWithChecks(t *testing.T) {
	ok := ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	failing := ReadinessCheck{Name: "minio", Check: func(context.Context) error { return errors.New("bucket missing") }}

	rec := httptest.NewRecorder()
	ReadyzWithChecks("cascade", ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ready"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	ReadyzWithChecks("cascade", ok, failing).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bucket missing") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestReadinessCheckTimeout(t *testing.T) {
	check := ReadinessCheck{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	res := check.run(context.Background())
	if res.Status != "fail" || res.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("run()=%+v, want deadline exceeded", res)
	}
}

func TestReadyzRunsChecksConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	blocking := func(name string) ReadinessCheck {
		return ReadinessCheck{Name: name, Timeout: time.Second, Check: func(ctx context.Context) error {
			started.Done()
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}
	}
	go func() {
		started.Wait()
		close(release)
	}()

	rec := httptest.NewRecorder()
	ReadyzWithChecks("cascade", blocking("postgres"), blocking("minio")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s, want both checks to pass together", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Index(body, "postgres") > strings.Index(body, "minio") {
		t.Fatalf("body=%s, want results in check order", body)
	}
}

func TestWrap_ReplacesMalformedRequestID(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Wrap(logger, "cascade", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.test/specs", nil)
	req.Header.Set("X-Request-Id", "forged id\r\nX-Admin: 1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-Id")
	if len(got) != 32 || strings.Contains(got, " ") {
		t.Fatalf("X-Request-Id=%q, want a generated id", got)
	}
	if !strings.Contains(logs.String(), `"request_id":"`+got+`"`) || !strings.Contains(logs.String(), `"status":202`) {
		t.Fatalf("access log=%s", logs.String())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CASCADE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("CASCADE_SHUTDOWN_TIMEOUT", "3s")
	cfg, err := ConfigFromEnv("cascade")
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.ShutdownTimeout != 3*time.Second || cfg.Service != "cascade" {
		t.Fatalf("cfg=%+v", cfg)
	}

	t.Setenv("CASCADE_SHUTDOWN_TIMEOUT", "soon")
	if _, err := ConfigFromEnv("cascade"); err == nil {
		t.Fatalf("expected error for bad duration")
	}
	if err := (Config{Addr: ":1"}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing service")
	}
}
