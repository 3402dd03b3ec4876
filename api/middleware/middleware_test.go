package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/provas/config"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ClientKey)) })
	return r
}

func call(r http.Handler, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"alpha", "", "beta"}))

	w := call(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="provas"`, w.Header().Get("WWW-Authenticate"))
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	assert.Equal(t, http.StatusUnauthorized, call(r, "X-API-Key", "gamma").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Authorization", "Basic alpha").Code)

	tests := []struct {
		name   string
		header []string
	}{
		{"api key header", []string{"X-API-Key", "alpha"}},
		{"bearer", []string{"Authorization", "Bearer beta"}},
		{"bearer lowercase scheme", []string{"Authorization", "bearer  beta "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.header...)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Regexp(t, `^key:[0-9a-f]{8}$`, w.Body.String())
			assert.NotContains(t, w.Body.String(), "alpha")
		})
	}
}

func TestAuthOpenWithoutKeys(t *testing.T) {
	r := newEngine(Auth([]string{""}))
	assert.Equal(t, http.StatusOK, call(r).Code)
}

func TestRateLimitBucketsPerKey(t *testing.T) {
	r := newEngine(
		Auth([]string{"alpha", "beta"}),
		RateLimit(config.PreviewConfig{RequestsPerSecond: 0.001, Burst: 1}),
	)

	assert.Equal(t, http.StatusOK, call(r, "X-API-Key", "alpha").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(r, "X-API-Key", "alpha").Code)
	// Same address, different key: its own bucket.
	assert.Equal(t, http.StatusOK, call(r, "X-API-Key", "beta").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newEngine(RateLimit(config.PreviewConfig{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, call(r).Code)
	}
}
