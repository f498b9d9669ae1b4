// Package normalize turns backend post records into DownloadResults.
package normalize

import (
	"fmt"

	"igdownloader/pkg/apify"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/models"
)

// Normalizer converts the first backend record into a DownloadResult
type Normalizer struct {
	logger logger.Logger
}

// New creates a Normalizer
func New(log logger.Logger) *Normalizer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Normalizer{logger: log.WithField("component", "normalizer")}
}

// Normalize builds a result from the first record of a batch. Records after the
// first are ignored. It returns nil when there is nothing to show.
func (n *Normalizer) Normalize(raw []apify.RawPost, originalURL string) *models.DownloadResult {
	if len(raw) == 0 {
		n.logger.WarnWithFields("no items in backend response", map[string]interface{}{
			"url": originalURL,
		})
		return nil
	}
	return n.NormalizePost(Decode(raw[0]), originalURL)
}

// NormalizePost builds a result from a decoded post
func (n *Normalizer) NormalizePost(post Post, originalURL string) *models.DownloadResult {
	info := post.info()

	if !info.hasMedia() {
		if c, ok := post.(*CarouselPost); !ok || len(c.Children) == 0 {
			n.logger.WarnWithFields("post carries no media", map[string]interface{}{
				"url":     originalURL,
				"post_id": info.ID,
			})
			return nil
		}
	}

	var media []models.MediaItem
	switch p := post.(type) {
	case *ImagePost:
		media = append(media, imageItem(&p.PostInfo, p.ID, 0))
	case *VideoPost:
		media = append(media, videoOrImageItem(&p.PostInfo, p.ID, 0))
	case *CarouselPost:
		media = n.carouselItems(p)
	case *UnknownPost:
		n.logger.DebugWithFields("unrecognized post type", map[string]interface{}{
			"url":  originalURL,
			"type": p.Type,
		})
	}

	if len(media) == 0 {
		media = append(media, videoOrImageItem(info, info.ID, 0))
	}

	result := &models.DownloadResult{
		SourceURL:   originalURL,
		Caption:     info.Caption,
		PublishedAt: info.PublishedAt,
		Media:       media,
	}
	if info.Owner != "" {
		result.Author = "@" + info.Owner
	}

	n.logger.DebugWithFields("normalized post", map[string]interface{}{
		"url":         originalURL,
		"media_count": len(media),
		"post_id":     info.ID,
	})

	return result
}

func (n *Normalizer) carouselItems(p *CarouselPost) []models.MediaItem {
	if len(p.Children) > 0 {
		items := make([]models.MediaItem, 0, len(p.Children))
		for i, child := range p.Children {
			ci := child.info()
			id := ci.ID
			if id == "" {
				id = p.ID
			}
			if _, ok := child.(*VideoPost); ok {
				items = append(items, videoOrImageItem(ci, id, i))
			} else {
				items = append(items, imageItem(ci, id, i))
			}
		}
		return items
	}

	n.logger.DebugWithFields("carousel without child posts", map[string]interface{}{
		"post_id":  p.ID,
		"variants": len(p.Variants),
	})

	if len(p.Variants) > 1 {
		items := make([]models.MediaItem, 0, len(p.Variants))
		for i, v := range p.Variants {
			items = append(items, models.MediaItem{
				ID:                 fmt.Sprintf("%s_img_%d", p.ID, i),
				Kind:               models.KindImage,
				ThumbnailURL:       v.URL,
				DownloadURL:        v.URL,
				QualityLabel:       "HD",
				Resolution:         resolution(v.Width, v.Height),
				EstimatedSizeLabel: EstimateImageSize(v.Width, v.Height),
				Format:             "jpg",
			})
		}
		return items
	}

	return []models.MediaItem{videoOrImageItem(&p.PostInfo, p.ID, 0)}
}

// videoOrImageItem emits a video when a video URL exists, otherwise an image
func videoOrImageItem(info *PostInfo, id string, index int) models.MediaItem {
	if info.VideoURL == "" {
		return imageItem(info, id, index)
	}
	return models.MediaItem{
		ID:                 fmt.Sprintf("%s_%d", id, index),
		Kind:               models.KindVideo,
		ThumbnailURL:       info.DisplayURL,
		DownloadURL:        info.VideoURL,
		QualityLabel:       VideoQuality(info.Width, info.Height),
		Resolution:         resolution(info.Width, info.Height),
		EstimatedSizeLabel: EstimateVideoSize(info.Width, info.Height),
		Format:             "mp4",
	}
}

func imageItem(info *PostInfo, id string, index int) models.MediaItem {
	download := BestImageURL(info)
	thumb := info.DisplayURL
	if thumb == "" {
		thumb = download
	}
	return models.MediaItem{
		ID:                 fmt.Sprintf("%s_%d", id, index),
		Kind:               models.KindImage,
		ThumbnailURL:       thumb,
		DownloadURL:        download,
		QualityLabel:       "HD",
		Resolution:         resolution(info.Width, info.Height),
		EstimatedSizeLabel: EstimateImageSize(info.Width, info.Height),
		Format:             "jpg",
	}
}

// BestImageURL picks the variant with the largest pixel count; the first one
// wins a tie. Without sized variants it falls back to the display URL.
func BestImageURL(info *PostInfo) string {
	best := -1
	bestPixels := 0
	for i, v := range info.Variants {
		if v.Width <= 0 || v.Height <= 0 {
			continue
		}
		if pixels := v.Width * v.Height; pixels > bestPixels {
			best, bestPixels = i, pixels
		}
	}
	if best >= 0 {
		return info.Variants[best].URL
	}
	if info.DisplayURL != "" {
		return info.DisplayURL
	}
	if len(info.Variants) > 0 {
		return info.Variants[0].URL
	}
	return ""
}

func resolution(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
