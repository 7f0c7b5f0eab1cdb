package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"go2tv.app/castbridge/castframework"
)

// DefaultContentType is used when a descriptor has no content type.
const DefaultContentType = "video/mp4"

var (
	// ErrMissingMediaURL is returned for a descriptor without a media URL.
	ErrMissingMediaURL = errors.New("media info: missing media URL")
	// ErrInvalidCustomData is returned when custom data cannot be encoded as a JSON object.
	ErrInvalidCustomData = errors.New("media info: invalid custom data")
)

// BuildMediaInfo translates d into the framework's media info.
func BuildMediaInfo(d MediaDescriptor) (castframework.MediaInfo, error) {
	if d.MediaURL == "" {
		return castframework.MediaInfo{}, ErrMissingMediaURL
	}

	meta := &castframework.MediaMetadata{
		MediaType: castframework.MediaTypeMovie,
		Title:     d.Title,
		Subtitle:  d.Subtitle,
	}
	if d.PosterURL != "" {
		meta.Images = append(meta.Images, castframework.WebImage{URL: d.PosterURL})
	}

	contentType := d.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	info := castframework.MediaInfo{
		ContentID:   d.MediaURL,
		ContentType: contentType,
		StreamType:  castframework.StreamTypeBuffered,
		Metadata:    meta,
	}

	if d.Duration != nil && *d.Duration > 0 {
		info.StreamDuration = *d.Duration
	}

	if d.CustomData != nil {
		raw, err := json.Marshal(d.CustomData)
		if err != nil {
			return castframework.MediaInfo{}, fmt.Errorf("%w: %v", ErrInvalidCustomData, err)
		}
		info.CustomData = raw
	}

	return info, nil
}
