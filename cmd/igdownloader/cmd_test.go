package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdownloader/internal/downloader"
	"igdownloader/internal/relay"
	"igdownloader/pkg/config"
	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/models"
	"igdownloader/pkg/scraper"
)

func TestNewEnvelopeSuccess(t *testing.T) {
	env := newEnvelope(&scraper.Response{
		RequestID: "req-1",
		Data:      &models.DownloadResult{SourceURL: "https://www.instagram.com/p/abc/"},
		Cached:    true,
		Duration:  250 * time.Millisecond,
	})

	assert.True(t, env.Success)
	assert.Empty(t, env.Error)
	assert.Equal(t, int64(250), env.Meta.Duration)

	var buf bytes.Buffer
	require.NoError(t, writeEnvelope(&buf, env))
	assert.Contains(t, buf.String(), `"cached": true`)
	assert.Contains(t, buf.String(), `"requestId": "req-1"`)
}

func TestNewEnvelopeError(t *testing.T) {
	env := newEnvelope(&scraper.Response{Err: igerrors.NoData()})

	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Equal(t, "NO_DATA_FOUND", env.Code)
	assert.NotEmpty(t, env.Error)
}

func TestSummarize(t *testing.T) {
	saved, skipped, failed := summarize([]downloader.Result{
		{},
		{Skipped: true},
		{Err: errors.New("boom")},
		{},
	})
	assert.Equal(t, 2, saved)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)
}

type stubFetcher map[string]string

func (s stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := s[url]
	if !ok {
		return nil, &relay.UpstreamError{StatusCode: 404}
	}
	return []byte(body), nil
}

func TestSaveAll(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Download.OutputDir = "/downloads"
	fs := afero.NewMemMapFs()

	data := &models.DownloadResult{
		SourceURL: "https://www.instagram.com/p/abc/",
		Media: []models.MediaItem{
			{ID: "abc_0", Kind: models.KindImage, DownloadURL: "https://cdn/0.jpg", Format: "jpg"},
			{ID: "abc_1", Kind: models.KindVideo, DownloadURL: "https://cdn/1.mp4", Format: "mp4"},
		},
	}
	fetcher := stubFetcher{"https://cdn/0.jpg": "img", "https://cdn/1.mp4": "vid"}

	require.NoError(t, saveAll(context.Background(), cfg, data, fs, fetcher, logger.NewNopLogger()))

	content, err := afero.ReadFile(fs, "/downloads/abc_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "vid", string(content))
	ok, _ := afero.Exists(fs, "/downloads/abc_0.json")
	assert.True(t, ok)

	delete(fetcher, "https://cdn/0.jpg")
	require.NoError(t, fs.Remove("/downloads/abc_0.jpg"))
	err = saveAll(context.Background(), cfg, data, fs, fetcher, logger.NewNopLogger())
	assert.EqualError(t, err, "1 of 2 downloads failed")

	ok, _ = afero.Exists(fs, "/downloads/abc_0.json")
	assert.False(t, ok, "sidecar of the removed file is cleaned up")
	ok, _ = afero.Exists(fs, "/downloads/abc_1.json")
	assert.True(t, ok)
}

func TestReadTokenFromPipe(t *testing.T) {
	token, err := readToken(strings.NewReader("  apify_api_abc \n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "apify_api_abc", token)

	_, err = readToken(strings.NewReader("\n"), &bytes.Buffer{})
	assert.EqualError(t, err, "no token provided")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "igdownloader.yaml")
	configFile = path
	defer func() { configFile = "" }()

	require.NoError(t, runConfigInit(configInitCmd, nil))

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, 90*time.Second, cfg.Apify.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.ErrorContains(t, runConfigInit(configInitCmd, nil), "already exists")
}
