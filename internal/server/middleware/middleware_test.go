package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://shop.example"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/stores", nil)
	req.Header.Set("Origin", "https://shop.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInsecureAuthStoresCaller(t *testing.T) {
	want := common.HexToAddress("0xabc")
	var got common.Address
	h := Auth(AuthConfig{Insecure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Caller(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/stores", nil)
	req.Header.Set(HeaderAddress, want.Hex())
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, want, got)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/stores", nil)
	req.Header.Set(HeaderAddress, "nope")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallerMissing(t *testing.T) {
	_, ok := Caller(context.Background())
	assert.False(t, ok)
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a", 3, time.Hour)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b", 3, time.Hour)
	assert.True(t, ok, "keys have separate buckets")

	ok, _ = l.Allow(ctx, "c", 0, time.Hour)
	assert.False(t, ok)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, 1, time.Minute, quiet)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitKeysOnClientIP(t *testing.T) {
	h := RateLimit(NewLocalLimiter(), 1, time.Hour, quiet)(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1, 10.0.0.9"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8"}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "4.3.2.1"}, "9.9.9.9:1", "4.3.2.1"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
