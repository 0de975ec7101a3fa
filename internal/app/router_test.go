package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	httpserver "github.com/fairyhunter13/ai-career-assist/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-career-assist/internal/app"
	"github.com/fairyhunter13/ai-career-assist/internal/config"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.example", []string{"https://a.example"}},
		{"https://a.example, https://b.example", []string{"https://a.example", "https://b.example"}},
		{" , ,", []string{"*"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, app.ParseOrigins(c.in), c.in)
	}
}

func TestBuildRouter_RoutesAndHeaders(t *testing.T) {
	t.Parallel()
	cfg := config.Config{RateLimitPerMin: 60}
	router := app.BuildRouter(cfg, &httpserver.Server{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouter_UnknownRoute(t *testing.T) {
	t.Parallel()
	cfg := config.Config{RateLimitPerMin: 60}
	router := app.BuildRouter(cfg, &httpserver.Server{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
