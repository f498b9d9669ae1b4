// Package metadata writes JSON sidecars next to downloaded media.
package metadata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"igdownloader/pkg/models"
)

// Sidecar describes one downloaded media item and the post it came from
type Sidecar struct {
	// Item
	ID           string           `json:"id"`
	Kind         models.MediaKind `json:"type"`
	DownloadURL  string           `json:"download_url"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	Quality      string           `json:"quality,omitempty"`
	Resolution   string           `json:"resolution,omitempty"`
	AspectRatio  string           `json:"aspect_ratio"`
	Format       string           `json:"format"`
	FileSize     int64            `json:"file_size,omitempty"`

	// Source post
	SourceURL   string     `json:"source_url"`
	Author      string     `json:"author,omitempty"`
	Caption     string     `json:"caption,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	DownloadedAt time.Time `json:"downloaded_at"`
}

// FromItem builds the sidecar for item, a member of result
func FromItem(result *models.DownloadResult, item models.MediaItem, fileSize int64, downloadedAt time.Time) *Sidecar {
	s := &Sidecar{
		ID:           item.ID,
		Kind:         item.Kind,
		DownloadURL:  item.DownloadURL,
		ThumbnailURL: item.ThumbnailURL,
		Quality:      item.QualityLabel,
		Resolution:   item.Resolution,
		AspectRatio:  AspectRatio(item.Resolution),
		Format:       item.Format,
		FileSize:     fileSize,
		DownloadedAt: downloadedAt,
	}
	if result != nil {
		s.SourceURL = result.SourceURL
		s.Author = result.Author
		s.Caption = result.Caption
		s.PublishedAt = result.PublishedAt
	}
	return s
}

// Store reads and writes sidecars in one directory
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a Store rooted at dir on fs
func NewStore(fs afero.Fs, dir string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, dir: dir}
}

func (st *Store) path(itemID string) string {
	return filepath.Join(st.dir, itemID+".json")
}

// Save writes <id>.json
func (st *Store) Save(s *Sidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := afero.WriteFile(st.fs, st.path(s.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// CleanOrphaned removes sidecars whose media file is gone and returns how
// many were removed
func (st *Store) CleanOrphaned() (int, error) {
	entries, err := afero.ReadDir(st.fs, st.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	media := make(map[string]bool)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || ext == ".json" || ext == ".tmp" {
			continue
		}
		media[strings.TrimSuffix(e.Name(), ext)] = true
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		if media[id] {
			continue
		}
		if err := st.fs.Remove(filepath.Join(st.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove orphaned metadata %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// AspectRatio names the ratio of a "WxH" resolution string
func AspectRatio(resolution string) string {
	w, h, ok := parseResolution(resolution)
	if !ok || h == 0 {
		return "unknown"
	}

	ratio := float64(w) / float64(h)

	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.79 && ratio < 0.81:
		return "4:5"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}

func parseResolution(resolution string) (int, int, bool) {
	ws, hs, found := strings.Cut(resolution, "x")
	if !found {
		return 0, 0, false
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}
