package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
)

// fakeBackend serves the two actor endpoints the client uses
func fakeBackend(t *testing.T, cdnURL string, runs *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/acts/"+config.DefaultActorID+"/runs", func(w http.ResponseWriter, r *http.Request) {
		runs.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"SUCCEEDED","defaultDatasetId":"ds1"}}`))
	})
	mux.HandleFunc("/v2/datasets/ds1/items", func(w http.ResponseWriter, r *http.Request) {
		posts := []map[string]interface{}{{
			"id":               "3100",
			"type":             "GraphImage",
			"displayUrl":       cdnURL + "/photo.jpg",
			"dimensionsWidth":  1080,
			"dimensionsHeight": 1350,
			"caption":          "golden hour",
			"ownerUsername":    "alice",
			"timestamp":        "2024-03-01T12:00:00.000Z",
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(posts))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer cdn.Close()

	var runs atomic.Int32
	backend := fakeBackend(t, cdn.URL, &runs)

	cfg := testConfig()
	cfg.Apify.BaseURL = backend.URL
	cfg.Retry.BaseDelay = 0

	var handler http.Handler
	app := fxtest.New(t,
		fx.NopLogger,
		Module(cfg, logger.NewNopLogger()),
		fx.Populate(&handler),
	)
	app.RequireStart()
	defer app.RequireStop()

	post := func() map[string]interface{} {
		req := httptest.NewRequest(http.MethodPost, "/download",
			strings.NewReader(`{"url":"https://www.instagram.com/p/C1abc/?igsh=xyz"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	first := post()
	assert.Equal(t, true, first["success"])
	data := first["data"].(map[string]interface{})
	assert.Equal(t, "@alice", data["author"])
	assert.Equal(t, "golden hour", data["caption"])

	media := data["media"].([]interface{})
	require.Len(t, media, 1)
	item := media[0].(map[string]interface{})
	assert.Equal(t, "3100_0", item["id"])
	assert.Equal(t, "image", item["type"])
	assert.Equal(t, "1080x1350", item["resolution"])
	assert.Equal(t, cdn.URL+"/photo.jpg", item["downloadUrl"])
	assert.Equal(t, false, first["meta"].(map[string]interface{})["cached"])

	second := post()
	assert.Equal(t, true, second["meta"].(map[string]interface{})["cached"])
	assert.Equal(t, int32(1), runs.Load(), "the second request is served from cache")

	// the media route proxies the CDN file as an attachment
	rec := httptest.NewRecorder()
	q := url.Values{"url": {cdn.URL + "/photo.jpg"}, "filename": {"3100_0.jpg"}}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="3100_0.jpg"`)

	// health reports the cached key and the single counted backend call
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download", nil))
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, float64(1), health["cacheStats"].(map[string]interface{})["size"])
	assert.Equal(t, float64(1), health["rateLimitStatus"].(map[string]interface{})["requestsThisMinute"])
}
