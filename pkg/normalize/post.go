package normalize

import (
	"time"

	"igdownloader/pkg/apify"
)

// Post is the closed set of post shapes the normalizer understands.
// Only types in this package implement it.
type Post interface {
	info() *PostInfo
}

// PostInfo carries the fields every variant shares
type PostInfo struct {
	ID          string
	DisplayURL  string
	VideoURL    string
	Width       int
	Height      int
	Caption     string
	Owner       string
	PublishedAt *time.Time
	Variants    []Variant
}

// Variant is one rendition of an image. Width and Height are zero when unknown.
type Variant struct {
	URL    string
	Width  int
	Height int
}

func (p *PostInfo) info() *PostInfo { return p }

// hasMedia reports whether any URL at all is present
func (p *PostInfo) hasMedia() bool {
	return p.DisplayURL != "" || p.VideoURL != "" || len(p.Variants) > 0
}

// ImagePost is a single still image
type ImagePost struct{ PostInfo }

// VideoPost is a single video
type VideoPost struct{ PostInfo }

// CarouselPost bundles ordered child posts. Children may be empty when the
// backend omitted them.
type CarouselPost struct {
	PostInfo
	Children []Post
}

// UnknownPost has a type discriminator the normalizer does not recognize
type UnknownPost struct {
	PostInfo
	Type string
}

// Decode translates a backend record into a typed Post
func Decode(raw apify.RawPost) Post {
	info := decodeInfo(raw)

	switch raw.Type {
	case apify.TypeImage:
		return &ImagePost{PostInfo: info}
	case apify.TypeVideo:
		return &VideoPost{PostInfo: info}
	case apify.TypeSidecar:
		children := make([]Post, 0, len(raw.ChildPosts))
		for _, child := range raw.ChildPosts {
			children = append(children, decodeChild(child))
		}
		return &CarouselPost{PostInfo: info, Children: children}
	default:
		return &UnknownPost{PostInfo: info, Type: raw.Type}
	}
}

// decodeChild accepts both the Graph* and the short child labels. A child with
// any other label is a video when it carries a video URL.
func decodeChild(raw apify.RawPost) Post {
	info := decodeInfo(raw)

	switch raw.Type {
	case apify.TypeVideo, apify.ChildTypeVideo:
		return &VideoPost{PostInfo: info}
	case apify.TypeImage, apify.ChildTypeImage:
		return &ImagePost{PostInfo: info}
	}
	if info.VideoURL != "" {
		return &VideoPost{PostInfo: info}
	}
	return &ImagePost{PostInfo: info}
}

func decodeInfo(raw apify.RawPost) PostInfo {
	info := PostInfo{
		ID:         raw.ID,
		DisplayURL: raw.DisplayURL,
		VideoURL:   raw.VideoURL,
		Width:      raw.DimensionsWidth,
		Height:     raw.DimensionsHeight,
		Caption:    raw.Caption,
		Owner:      raw.OwnerUsername,
	}

	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			info.PublishedAt = &ts
		}
	}

	seen := make(map[string]bool)
	for _, res := range raw.ImageResources {
		if res.URL == "" || seen[res.URL] {
			continue
		}
		seen[res.URL] = true
		info.Variants = append(info.Variants, Variant{URL: res.URL, Width: res.Width, Height: res.Height})
	}
	if len(info.Variants) == 0 {
		for _, u := range raw.Images {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			info.Variants = append(info.Variants, Variant{URL: u})
		}
	}

	return info
}
