// Package platform recognizes which social network a URL belongs to.
package platform

import (
	"net/url"
	"strings"
)

// Platform names a social network
type Platform string

const (
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
	Facebook  Platform = "facebook"
	Twitter   Platform = "twitter"
	Unknown   Platform = "unknown"
)

var hosts = map[string]Platform{
	"instagram.com": Instagram,
	"instagr.am":    Instagram,
	"youtube.com":   YouTube,
	"youtu.be":      YouTube,
	"facebook.com":  Facebook,
	"fb.watch":      Facebook,
	"twitter.com":   Twitter,
	"x.com":         Twitter,
}

// Detect returns the platform for rawURL, matching the host and any of its subdomains
func Detect(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Unknown
	}
	host := strings.ToLower(u.Hostname())
	for host != "" {
		if p, ok := hosts[host]; ok {
			return p
		}
		_, rest, found := strings.Cut(host, ".")
		if !found {
			break
		}
		host = rest
	}
	return Unknown
}

// Supported reports whether downloads are implemented for p. Unknown hosts are
// left to URL validation.
func (p Platform) Supported() bool {
	return p == Instagram || p == Unknown
}

// DisplayName is the human form used in messages
func (p Platform) DisplayName() string {
	switch p {
	case YouTube:
		return "YouTube"
	case Facebook:
		return "Facebook"
	case Twitter:
		return "Twitter"
	case Instagram:
		return "Instagram"
	default:
		return "Unknown platform"
	}
}
