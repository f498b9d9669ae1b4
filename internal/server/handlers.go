package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	igerrors "igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/models"
	"igdownloader/pkg/platform"
	"igdownloader/pkg/scraper"
)

// ServiceName is reported by the health endpoint
const ServiceName = "instagram-downloader"

// Service is the orchestration surface the HTTP layer depends on
type Service interface {
	FetchMedia(ctx context.Context, rawURL string) *scraper.Response
	CacheStats() models.CacheStats
	RateLimitStatus() models.RateLimitInfo
}

type downloadRequest struct {
	URL string `json:"url"`
}

type responseMeta struct {
	RequestID     string               `json:"requestId,omitempty"`
	Cached        bool                 `json:"cached"`
	Duration      int64                `json:"duration"`
	RateLimitInfo models.RateLimitInfo `json:"rateLimitInfo"`
}

type successResponse struct {
	Success bool                   `json:"success"`
	Data    *models.DownloadResult `json:"data"`
	Meta    responseMeta           `json:"meta"`
}

type errorResponse struct {
	Error     string        `json:"error"`
	Code      string        `json:"code,omitempty"`
	Retryable bool          `json:"retryable"`
	Meta      *responseMeta `json:"meta,omitempty"`
}

type healthResponse struct {
	Service         string               `json:"service"`
	Timestamp       time.Time            `json:"timestamp"`
	CacheStats      models.CacheStats    `json:"cacheStats"`
	RateLimitStatus models.RateLimitInfo `json:"rateLimitStatus"`
}

// DownloadHandler serves POST and GET /download
type DownloadHandler struct {
	service Service
	logger  logger.Logger
	now     func() time.Time
}

// NewDownloadHandler creates the download handler
func NewDownloadHandler(service Service, log logger.Logger) *DownloadHandler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &DownloadHandler{service: service, logger: log.WithField("component", "http"), now: time.Now}
}

// HandleDownload resolves the posted URL
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	if p := platform.Detect(req.URL); !p.Supported() {
		apiErr := igerrors.PlatformNotSupported(p.DisplayName())
		writeJSON(w, h.logger, apiErr.StatusHint, errorResponse{
			Error:     apiErr.Message,
			Code:      apiErr.Code,
			Retryable: apiErr.Retryable,
			Meta:      &responseMeta{RateLimitInfo: h.service.RateLimitStatus()},
		})
		return
	}

	resp := h.service.FetchMedia(r.Context(), req.URL)
	meta := responseMeta{
		RequestID:     resp.RequestID,
		Cached:        resp.Cached,
		Duration:      resp.Duration.Milliseconds(),
		RateLimitInfo: resp.RateLimit,
	}

	if resp.Err != nil {
		status := resp.Err.StatusHint
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, h.logger, status, errorResponse{
			Error:     resp.Err.Message,
			Code:      resp.Err.Code,
			Retryable: resp.Err.Retryable,
			Meta:      &meta,
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, successResponse{Success: true, Data: resp.Data, Meta: meta})
}

// HandleHealth reports cache and rate limiter state
func (h *DownloadHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, healthResponse{
		Service:         ServiceName,
		Timestamp:       h.now().UTC(),
		CacheStats:      h.service.CacheStats(),
		RateLimitStatus: h.service.RateLimitStatus(),
	})
}

func writeJSON(w http.ResponseWriter, log logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}
