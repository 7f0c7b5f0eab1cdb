package utils

import (
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/h2non/filetype"
)

var errUnknownMime = errors.New("unknown mime type")

func normalizeContentType(v string) string {
	if v == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(v)
	if err == nil {
		return strings.ToLower(strings.TrimSpace(mt))
	}

	parts := strings.Split(v, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

// shouldSniffContentType reports whether a server supplied type is too
// generic to trust.
func shouldSniffContentType(mediaType string) bool {
	switch mediaType {
	case "", "/", "application/octet-stream", "binary/octet-stream", "text/plain":
		return true
	default:
		return false
	}
}

// GetMimeDetailsFromBytes returns the mime type matching the magic bytes in head.
func GetMimeDetailsFromBytes(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil {
		return "", err
	}

	if kind == filetype.Unknown {
		return "", errUnknownMime
	}

	return kind.MIME.Value, nil
}

// GetMimeDetailsFromPath returns the mime type for the extension of p.
func GetMimeDetailsFromPath(p string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return "", errUnknownMime
	}

	kind := filetype.GetType(ext)
	if kind == filetype.Unknown {
		return "", errUnknownMime
	}

	return kind.MIME.Value, nil
}
