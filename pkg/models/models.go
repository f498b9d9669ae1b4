package models

import "time"

// MediaKind distinguishes still images from videos
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MediaItem is one downloadable asset of a resolved post
type MediaItem struct {
	ID                 string    `json:"id"`
	Kind               MediaKind `json:"type"`
	ThumbnailURL       string    `json:"thumbnailUrl"`
	DownloadURL        string    `json:"downloadUrl"`
	QualityLabel       string    `json:"quality"`
	Resolution         string    `json:"resolution"`
	EstimatedSizeLabel string    `json:"size"`
	Format             string    `json:"format"`
}

// DownloadResult is a resolved post with its ordered media
type DownloadResult struct {
	SourceURL   string      `json:"url"`
	Caption     string      `json:"caption,omitempty"`
	Author      string      `json:"author,omitempty"`
	PublishedAt *time.Time  `json:"timestamp,omitempty"`
	Media       []MediaItem `json:"media"`
}

// RateLimitInfo is a point-in-time view of the fixed-window counters
type RateLimitInfo struct {
	RequestsThisMinute int       `json:"requestsThisMinute"`
	RequestsThisHour   int       `json:"requestsThisHour"`
	LimitPerMinute     int       `json:"limitPerMinute"`
	LimitPerHour       int       `json:"limitPerHour"`
	MinuteResetsAt     time.Time `json:"minuteResetsAt"`
	HourResetsAt       time.Time `json:"hourResetsAt"`
}

// CacheStats describes the response cache contents
type CacheStats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}
