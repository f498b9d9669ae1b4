// Package relay streams remote media to the browser as an attachment.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"igdownloader/pkg/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// DefaultFilename is used when the caller supplies none
const DefaultFilename = "instagram_media"

const maxFilenameLength = 100

// ErrTooLarge is returned when the upstream announces more bytes than allowed
var ErrTooLarge = errors.New("media exceeds size limit")

// UpstreamError is a non-2xx answer from the media host
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Media is an open upstream body plus the headers worth forwarding
type Media struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Fetcher opens media URLs with browser-like headers
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   logger.Logger
}

// NewFetcher creates a Fetcher. maxBytes <= 0 disables the size cap.
func NewFetcher(timeout time.Duration, maxBytes int64, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   log.WithField("component", "relay"),
	}
}

// Open starts the upstream request. The caller must close Media.Body.
func (f *Fetcher) Open(ctx context.Context, mediaURL string) (*Media, error) {
	u, err := url.Parse(mediaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid media url %q", mediaURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error fetching media: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		resp.Body.Close()
		return nil, ErrTooLarge
	}

	body := resp.Body
	if f.maxBytes > 0 {
		body = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(resp.Body, f.maxBytes), resp.Body}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Media{Body: body, ContentType: contentType, ContentLength: resp.ContentLength}, nil
}

// Fetch reads the whole body of mediaURL
func (f *Fetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	m, err := f.Open(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	defer m.Body.Close()
	return io.ReadAll(m.Body)
}

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
var underscores = regexp.MustCompile(`_+`)

// SafeFilename keeps letters, digits, dot, dash and underscore, replaces
// everything else with a single underscore and trims to 100 characters.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFilename
	}
	cleaned := unsafeRun.ReplaceAllString(name, "_")
	cleaned = underscores.ReplaceAllString(cleaned, "_")
	if len(cleaned) > maxFilenameLength {
		cleaned = cleaned[:maxFilenameLength]
	}
	if strings.Trim(cleaned, "_.") == "" {
		return DefaultFilename
	}
	return cleaned
}
