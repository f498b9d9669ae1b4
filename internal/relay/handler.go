package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"igdownloader/pkg/logger"
)

// Opener opens a remote media body
type Opener interface {
	Open(ctx context.Context, mediaURL string) (*Media, error)
}

// Handler serves GET /media?url=...&filename=...
type Handler struct {
	opener Opener
	logger logger.Logger
}

// NewHandler creates the media proxy handler
func NewHandler(opener Opener, log logger.Logger) *Handler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Handler{opener: opener, logger: log.WithField("component", "relay")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mediaURL := r.URL.Query().Get("url")
	if mediaURL == "" {
		writeError(w, http.StatusBadRequest, "Media URL is required")
		return
	}

	media, err := h.opener.Open(r.Context(), mediaURL)
	if err != nil {
		fields := map[string]interface{}{"error": err.Error()}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			fields["upstream_status"] = upstream.StatusCode
		}
		h.logger.WarnWithFields("failed to fetch media", fields)
		writeError(w, http.StatusBadGateway, "Failed to fetch media from Instagram")
		return
	}
	defer media.Body.Close()

	header := w.Header()
	header.Set("Content-Type", media.ContentType)
	if media.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(media.ContentLength, 10))
	}
	header.Set("Content-Disposition", `attachment; filename="`+SafeFilename(r.URL.Query().Get("filename"))+`"`)
	header.Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, media.Body)
	if err != nil {
		// headers are already sent; all we can do is log
		h.logger.WarnWithFields("media stream interrupted", map[string]interface{}{
			"error":   err.Error(),
			"written": written,
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
