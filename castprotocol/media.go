package castprotocol

import "encoding/json"

// Metadata types understood by the default media receiver.
const (
	MetadataTypeGeneric = 0
	MetadataTypeMovie   = 1
)

// Stream types of a media item.
const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"
)

// MediaImage is a poster or thumbnail attached to the media metadata.
type MediaImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaMeta contains metadata about the media.
type MediaMeta struct {
	MetadataType int          `json:"metadataType"`
	Title        string       `json:"title,omitempty"`
	Subtitle     string       `json:"subtitle,omitempty"`
	Images       []MediaImage `json:"images,omitempty"`
}

// MediaItem is the "media" object of a LOAD request.
type MediaItem struct {
	ContentId   string          `json:"contentId"`
	ContentType string          `json:"contentType"`
	StreamType  string          `json:"streamType"`
	Duration    float64         `json:"duration,omitempty"`
	Metadata    *MediaMeta      `json:"metadata,omitempty"`
	CustomData  json.RawMessage `json:"customData,omitempty"`
}

// LoadRequest describes what CastClient.Load sends to the receiver.
// StartTime is in seconds.
type LoadRequest struct {
	Media     MediaItem
	StartTime float64
	Autoplay  bool
}
