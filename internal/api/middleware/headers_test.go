package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/message/1", nil)
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, req)

	expected := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": contentSecurityPolicy,
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set on plain HTTP")
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	for name, req := range map[string]*http.Request{
		"tls":   func() *http.Request { r := httptest.NewRequest(http.MethodGet, "/", nil); r.TLS = &tls.ConnectionState{}; return r }(),
		"proxy": func() *http.Request { r := httptest.NewRequest(http.MethodGet, "/", nil); r.Header.Set("X-Forwarded-Proto", "https"); return r }(),
	} {
		rec := httptest.NewRecorder()
		SecurityHeaders(okHandler).ServeHTTP(rec, req)
		if !strings.HasPrefix(rec.Header().Get("Strict-Transport-Security"), "max-age=") {
			t.Errorf("%s: expected HSTS header", name)
		}
	}
}

func TestRecoverer(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	Recoverer(zaptest.NewLogger(t))(panicking).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	RequestLogger(zaptest.NewLogger(t), true)(okHandler).ServeHTTP(rec, req)

	if len(rec.Header().Get(RequestIDHeader)) != 8 {
		t.Errorf("request id = %q", rec.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	RequestLogger(zaptest.NewLogger(t), false)(okHandler).ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "upstream-id" {
		t.Errorf("request id = %q, want upstream-id", got)
	}
}
