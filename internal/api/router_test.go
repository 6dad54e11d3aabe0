package api_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/api"
	"github.com/ricirt/adpromo/internal/backend"
	"github.com/ricirt/adpromo/internal/media"
	"github.com/ricirt/adpromo/internal/metrics"
	"github.com/ricirt/adpromo/internal/provider"
	"github.com/ricirt/adpromo/internal/repository"
	"github.com/ricirt/adpromo/internal/service"
)

type harness struct {
	router      http.Handler
	repo        *repository.MockEntryRepository
	postStatus  atomic.Int32
	socialPosts atomic.Int32
	imageURL    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{repo: repository.NewMockEntryRepository()}
	h.postStatus.Store(http.StatusCreated)

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = png.Encode(w, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	}))
	t.Cleanup(images.Close)
	h.imageURL = images.URL + "/thumb.png"

	cms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories":
			_, _ = io.WriteString(w, `[{"id":7,"name":"Deals"}]`)
		case "/media":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":5,"source_url":"https://cms.example/uploads/thumbnail.jpg"}`)
		case "/posts":
			status := int(h.postStatus.Load())
			w.WriteHeader(status)
			if status == http.StatusCreated {
				_, _ = io.WriteString(w, `{"id":99,"link":"https://cms.example/?p=99"}`)
			} else {
				_, _ = io.WriteString(w, `{"code":"rest_cannot_create"}`)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(cms.Close)

	social := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.socialPosts.Add(1)
		_, _ = io.WriteString(w, `{"id":"s1"}`)
	}))
	t.Cleanup(social.Close)

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	hooks := metrics.New(reg).ServiceHooks()

	client := backend.NewClient(cms.URL, "u", "p", time.Second, nil)
	cats := backend.NewCategoryDirectory(client, nil, time.Minute, logger)
	resolver := media.NewResolver(client, time.Second, 1<<20)
	entries := service.NewEntryService(h.repo, cats, resolver,
		service.NewPublisher(client, true), service.PipelineOptions{ResolveMedia: true}, hooks, logger)

	poster := provider.NewWebhookPoster(social.URL, "", time.Second, nil)
	promotions := service.NewPromotionService(h.repo, poster, service.ModeFlag, hooks, logger)

	h.router = api.NewRouter(entries, promotions, reg, 1<<20, logger)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out))
	}
	return rec, out
}

func (h *harness) entryBody(title string) string {
	b, _ := json.Marshal(map[string]any{
		"title":          title,
		"category":       "Deals",
		"promotion_text": "Half price",
		"payload":        `<a href="https://ad.example/?img=` + h.imageURL + `&w=1">ad</a>`,
		"tags":           []string{"sale"},
	})
	return string(b)
}

func TestRouter_RegisterAndPromote(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, http.MethodPost, "/api/v1/entries", h.entryBody("Summer sale"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "https://cms.example/uploads/thumbnail.jpg", entry["media_url"])
	assert.Equal(t, float64(99), body["post_id"])
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	rec, body = h.do(t, http.MethodGet, "/api/v1/entries?promoted=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	rec, body = h.do(t, http.MethodPost, "/api/v1/promotions", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	promoted := body["promoted"].(map[string]any)
	assert.Equal(t, "Summer sale", promoted["title"])
	assert.Equal(t, true, promoted["promoted"])
	assert.Equal(t, int32(1), h.socialPosts.Load())

	rec, body = h.do(t, http.MethodPost, "/api/v1/promotions", "{}")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["promoted"])
	assert.Equal(t, int32(1), h.socialPosts.Load(), "empty queue must not post")
}

func TestRouter_CreateErrors(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/entries", h.entryBody("Summer sale"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/entries", h.entryBody("Summer sale"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body := h.do(t, http.MethodPost, "/api/v1/entries", `{"title":"x","payload":"p"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"], "promotion_text")

	rec, _ = h.do(t, http.MethodPost, "/api/v1/entries", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PublishFailureSurfacesBackendResponse(t *testing.T) {
	h := newHarness(t)
	h.postStatus.Store(http.StatusForbidden)

	rec, body := h.do(t, http.MethodPost, "/api/v1/entries", h.entryBody("Summer sale"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, float64(http.StatusForbidden), body["backend_status"])
	assert.Contains(t, body["backend_body"], "rest_cannot_create")
	assert.Equal(t, 0, h.repo.AppendCalls)
}

func TestRouter_PromoteByTitleErrors(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/promotions", `{"title":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.do(t, http.MethodPost, "/api/v1/entries", h.entryBody("Summer sale"))
	rec, _ = h.do(t, http.MethodPost, "/api/v1/promotions", `{"title":"Summer sale"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/promotions", `{"title":"Summer sale"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int32(1), h.socialPosts.Load())
}

func TestRouter_CategoriesHealthMetrics(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(t, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["Deals"])

	rec, _ = h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adpromo_pending_entries")
}
