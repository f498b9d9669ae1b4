// Package validator classifies post URLs before any network call is made.
package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// pathShape matches post, reel, extended-video and story paths. Only stories may carry a
// second segment (/stories/<user>/<id>/).
var pathShape = regexp.MustCompile(`^/(?:(p|reel|reels|tv)/[A-Za-z0-9_.-]+|(stories)/[A-Za-z0-9_.-]+(?:/[A-Za-z0-9_.-]+)?)/?$`)

// ValidURL is an accepted URL together with its canonical form
type ValidURL struct {
	// Original is the input as received, trimmed of surrounding whitespace
	Original string
	// Canonical has the query string and fragment stripped
	Canonical string
	// Category is the first path segment: p, reel, reels, tv or stories
	Category string
}

// Rejected describes why an input was refused
type Rejected struct {
	Input  string
	Reason string
}

func (r *Rejected) Error() string {
	return r.Reason
}

// Validator checks URL shape and, optionally, the host
type Validator struct {
	allowedHosts map[string]struct{}
}

// New creates a Validator. An empty host list accepts any host.
func New(allowedHosts []string) *Validator {
	v := &Validator{}
	if len(allowedHosts) > 0 {
		v.allowedHosts = make(map[string]struct{}, len(allowedHosts))
		for _, h := range allowedHosts {
			v.allowedHosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
	}
	return v
}

// Validate returns the canonical URL or a *Rejected error
func (v *Validator) Validate(input string) (ValidURL, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ValidURL{}, &Rejected{Input: input, Reason: "URL is required"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ValidURL{}, &Rejected{Input: input, Reason: "URL could not be parsed"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ValidURL{}, &Rejected{Input: input, Reason: "URL must use http or https"}
	}
	if u.Hostname() == "" {
		return ValidURL{}, &Rejected{Input: input, Reason: "URL must include a host"}
	}
	if v.allowedHosts != nil {
		if _, ok := v.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
			return ValidURL{}, &Rejected{Input: input, Reason: fmt.Sprintf("host %q is not supported", u.Hostname())}
		}
	}

	m := pathShape.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return ValidURL{}, &Rejected{Input: input, Reason: "Invalid Instagram URL. Please provide a valid post, reel, or story URL."}
	}

	category := m[1]
	if category == "" {
		category = m[2]
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.ForceQuery = false
	canonical.Fragment = ""
	canonical.RawFragment = ""

	return ValidURL{
		Original:  trimmed,
		Canonical: canonical.String(),
		Category:  category,
	}, nil
}
