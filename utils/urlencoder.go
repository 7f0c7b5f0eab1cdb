package utils

import (
	"net/url"
	"path"
	"strings"
)

// TitleFromURL returns the decoded last path segment of a media URL, or
// the host when the path is empty.
func TitleFromURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Host
	}

	if out, err := url.PathUnescape(base); err == nil {
		return out
	}
	return base
}
