package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/internal/service"
)

type fakeService struct {
	createErr  error
	resolveErr error
	lastRC     *models.RequestContext
	lastLimit  int
	deleted    string
	healthy    bool
}

func (f *fakeService) Create(_ context.Context, originalURL string, expiresAt *time.Time) (*models.ShortenResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.ShortenResponse{Code: "abc123", ShortURL: "http://sho.rt/abc123", OriginalURL: originalURL, ExpiresAt: expiresAt}, nil
}

func (f *fakeService) Resolve(_ context.Context, code string, rc *models.RequestContext) (string, error) {
	f.lastRC = rc
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "https://example.com/" + code, nil
}

func (f *fakeService) Stats(_ context.Context, code string) (*models.StatsResponse, error) {
	if code != "abc123" {
		return nil, service.ErrNotFound
	}
	return &models.StatsResponse{Code: code, OriginalURL: "https://example.com", ClickCount: 7}, nil
}

func (f *fakeService) Delete(_ context.Context, code string) error {
	f.deleted = code
	return nil
}

func (f *fakeService) Visits(_ context.Context, code string, limit int) ([]models.Visit, error) {
	f.lastLimit = limit
	return nil, nil
}

func (f *fakeService) Health(context.Context) (bool, map[string]string) {
	return f.healthy, map[string]string{"store": "ok", "cache": "ok"}
}

func serve(t *testing.T, svc *fakeService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(NewLinkHandler(svc, nil), nil, nil).ServeHTTP(rec, req)
	return rec
}

func TestCreateLink(t *testing.T) {
	svc := &fakeService{}
	body := `{"url":"https://example.com","expires_at":"2030-01-01T00:00:00Z"}`

	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/api/urls", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.ShortenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "abc123", resp.Code)
	assert.Equal(t, "https://example.com", resp.OriginalURL)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, 2030, resp.ExpiresAt.Year())
}

func TestCreateLink_BadPayload(t *testing.T) {
	for _, body := range []string{`{`, `{"url":"https://x.io","custom":"y"}`} {
		rec := serve(t, &fakeService{}, httptest.NewRequest(http.MethodPost, "/api/urls", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidURL, http.StatusBadRequest},
		{service.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: find: timeout", service.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{service.ErrGenExhausted, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := serve(t, &fakeService{createErr: tt.err}, httptest.NewRequest(http.MethodPost, "/api/urls", strings.NewReader(`{"url":"x"}`)))
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.NotEmpty(t, body["error"])
	}
}

func TestRedirect(t *testing.T) {
	svc := &fakeService{}
	req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://ref.example")

	rec := serve(t, svc, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/abc123", rec.Header().Get("Location"))
	require.NotNil(t, svc.lastRC)
	assert.Equal(t, "test-agent", svc.lastRC.UserAgent)
	assert.Equal(t, "https://ref.example", svc.lastRC.Referer)
}

func TestRedirect_NotFound(t *testing.T) {
	rec := serve(t, &fakeService{resolveErr: service.ErrNotFound}, httptest.NewRequest(http.MethodGet, "/nope42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	rec := serve(t, &fakeService{}, httptest.NewRequest(http.MethodGet, "/api/urls/abc123/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(7), stats.ClickCount)

	rec = serve(t, &fakeService{}, httptest.NewRequest(http.MethodGet, "/api/urls/other1/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVisits(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/api/urls/abc123/visits?limit=20", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, svc.lastLimit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, svc, httptest.NewRequest(http.MethodGet, "/api/urls/abc123/visits?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteLink(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, httptest.NewRequest(http.MethodDelete, "/api/urls/abc123", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc123", svc.deleted)
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakeService{healthy: true}, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","dependencies":{"store":"ok","cache":"ok"}}`, rec.Body.String())

	rec = serve(t, &fakeService{}, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHomeAndMetricsAreNotCodes(t *testing.T) {
	svc := &fakeService{}

	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, svc, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.lastRC, "/metrics must not resolve as a short code")
}
