package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdownloader/pkg/config"
	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func testConfig(baseURL string) config.ApifyConfig {
	return config.ApifyConfig{
		Token:             "secret-token",
		ActorID:           config.DefaultActorID,
		BaseURL:           baseURL,
		Timeout:           5 * time.Second,
		WaitForFinishSecs: 60,
		ResultsLimit:      1,
	}
}

func TestFetchPosts(t *testing.T) {
	var gotInput RunInput
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/acts/"+config.DefaultActorID+"/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "60", r.URL.Query().Get("waitForFinish"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"SUCCEEDED","defaultDatasetId":"ds1"}}`))
	})
	mux.HandleFunc("/v2/datasets/ds1/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("clean"))
		_, _ = w.Write([]byte(`[{"id":"123","type":"GraphImage","displayUrl":"https://cdn/x.jpg","dimensionsWidth":1080,"dimensionsHeight":1350,"ownerUsername":"alice"}]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	posts, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.NoError(t, err)
	require.Len(t, posts, 1)

	assert.Equal(t, "123", posts[0].ID)
	assert.Equal(t, TypeImage, posts[0].Type)
	assert.Equal(t, 1350, posts[0].DimensionsHeight)
	assert.Equal(t, "alice", posts[0].OwnerUsername)

	assert.Equal(t, []string{"https://www.instagram.com/p/abc/"}, gotInput.DirectURLs)
	assert.Equal(t, "posts", gotInput.ResultsType)
	assert.Equal(t, 1, gotInput.ResultsLimit)
	assert.Equal(t, "hashtag", gotInput.SearchType)
	assert.False(t, gotInput.AddParentData)
}

func TestFetchPostsStatusErrorsClassify(t *testing.T) {
	tests := []struct {
		status int
		kind   igerrors.Kind
	}{
		{http.StatusUnauthorized, igerrors.KindUnauthorized},
		{http.StatusNotFound, igerrors.KindNotFound},
		{http.StatusTooManyRequests, igerrors.KindRateLimited},
		{http.StatusGatewayTimeout, igerrors.KindTimeout},
		{http.StatusServiceUnavailable, igerrors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL), logger.NewTestLogger())
			_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
			require.Error(t, err)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.kind, igerrors.Classify(err).Kind)
		})
	}
}

func TestFetchPostsFailedRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"FAILED","defaultDatasetId":"ds1"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILED")
}

func TestFetchPostsFailedRunIDDoesNotSkewClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"Xa401bC429z","status":"FAILED","defaultDatasetId":"ds1"}}`))
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	client := NewClient(testConfig(server.URL), log)
	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "Xa401bC429z")

	classified := igerrors.Classify(err)
	assert.Equal(t, igerrors.KindUnknown, classified.Kind)
	assert.Equal(t, http.StatusInternalServerError, classified.StatusHint)
	assert.False(t, classified.Retryable)
	assert.True(t, log.HasMessage("actor run did not succeed"))
}

func TestFetchPostsUnfinishedRunIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"RUNNING","defaultDatasetId":"ds1"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.Equal(t, igerrors.KindTimeout, igerrors.Classify(err).Kind)
}

func TestFetchPostsMissingDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"SUCCEEDED"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset id")
}

func TestFetchPostsTransportErrors(t *testing.T) {
	client := NewClient(testConfig("http://apify.invalid"), logger.NewTestLogger())
	client.httpClient = &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}}

	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	classified := igerrors.Classify(err)
	assert.Equal(t, igerrors.KindNetwork, classified.Kind)
	assert.True(t, classified.Retryable)

	client.httpClient = &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}}}
	_, err = client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.Equal(t, igerrors.KindTimeout, igerrors.Classify(err).Kind)
}

func TestFetchPostsBadJSON(t *testing.T) {
	log := logger.NewTestLogger()
	client := NewClient(testConfig("http://apify.invalid"), log)
	client.httpClient = &http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, "<html>"), nil
	}}}

	_, err := client.FetchPosts(context.Background(), "https://www.instagram.com/p/abc/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(config.ApifyConfig{}, logger.NewNopLogger())
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, config.DefaultActorID, client.actorID)
	assert.Equal(t, 1, client.resultsLimit)
}
