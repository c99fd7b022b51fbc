package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rr.Body.String())
	}
	return body
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"::1", true},
		{"[::1]", true},
		{"127.0.0.1", true},
		{"8.8.8.8:12345", false},
		{"192.168.1.1:8080", false},
		{"10.0.0.1:3000", false},
		{"not-an-ip:1234", false},
		{"", false},
		{"garbage", false},
	}

	for _, tc := range cases {
		if got := isLoopbackRemoteAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestLoopbackGuard_RejectsNonLoopback(t *testing.T) {
	handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for non-loopback")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/render", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
	body := decodeJSONBody(t, rr)
	if code, ok := body["code"].(string); !ok || code != "FORBIDDEN" {
		t.Errorf("error code = %v, want FORBIDDEN", body["code"])
	}
}

func TestLoopbackGuard_AllowsLoopback(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:12345", "[::1]:12345"} {
		called := false
		handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if !called {
			t.Errorf("handler not called for %s", addr)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret-token", http.StatusOK},
	}

	handler := BearerAuth("s3cret-token", testLogger())(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DeniedOrigin(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (request still served, just no ACAO)", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty for denied origin", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/gifs/output_gif_0.gif", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "range")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")); !strings.Contains(got, "range") {
		t.Errorf("Access-Control-Allow-Headers = %q, want range", got)
	}
}

func TestMaxBodySize(t *testing.T) {
	handler := MaxBodySize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, small)
	if rr.Code != http.StatusOK {
		t.Errorf("small body status = %d, want 200", rr.Code)
	}

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("big body status = %d, want 413", rr.Code)
	}

	// Unknown length is caught while reading.
	chunked := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	chunked.ContentLength = -1
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, chunked)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("chunked body status = %d, want 413", rr.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(seen) != 8 {
		t.Errorf("request id = %q, want 8 chars", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Errorf("X-Request-ID = %q, want %q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestLoggingMiddleware_TagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestIDMiddleware()(LoggingMiddleware(logger)(okHandler()))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/gifs/output_gif_3.gif", nil))

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "http request" {
		t.Errorf("msg = %v", record["msg"])
	}
	if id := rr.Header().Get("X-Request-ID"); id == "" || record["request_id"] != id {
		t.Errorf("request_id = %v, want %q", record["request_id"], id)
	}
	if record["path"] != "/gifs/output_gif_3.gif" {
		t.Errorf("path = %v", record["path"])
	}
}

func TestRecoveryMiddleware_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestIDMiddleware()(RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rr.Header().Get("X-Request-ID")
	if id == "" || !strings.Contains(buf.String(), `"request_id":"`+id+`"`) {
		t.Errorf("log = %q, want request_id %q", buf.String(), id)
	}
}
