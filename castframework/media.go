package castframework

import "encoding/json"

// MediaMetadata types.
const (
	MediaTypeGeneric = 0
	MediaTypeMovie   = 1
)

// StreamType of a MediaInfo.
type StreamType string

const (
	StreamTypeBuffered StreamType = "BUFFERED"
	StreamTypeLive     StreamType = "LIVE"
)

// Player states reported in MediaStatus.
const (
	PlayerStateIdle      = "IDLE"
	PlayerStatePlaying   = "PLAYING"
	PlayerStatePaused    = "PAUSED"
	PlayerStateBuffering = "BUFFERING"
)

// Idle reasons reported in MediaStatus.
const (
	IdleReasonFinished    = "FINISHED"
	IdleReasonCancelled   = "CANCELLED"
	IdleReasonInterrupted = "INTERRUPTED"
	IdleReasonError       = "ERROR"
)

// WebImage is an image referenced by URL.
type WebImage struct {
	URL string
}

// MediaMetadata describes the media for receiver UIs.
type MediaMetadata struct {
	MediaType int
	Title     string
	Subtitle  string
	Images    []WebImage
}

// MediaInfo is everything the receiver needs to load a piece of media.
type MediaInfo struct {
	ContentID   string
	ContentType string
	StreamType  StreamType
	// StreamDuration is in milliseconds; zero lets the receiver detect it.
	StreamDuration int64
	Metadata       *MediaMetadata
	// CustomData is a JSON object forwarded verbatim to the receiver.
	CustomData json.RawMessage
}

// LoadOptions controls how a MediaInfo is loaded.
type LoadOptions struct {
	Autoplay bool
	// PlayPosition is the start position in milliseconds.
	PlayPosition int64
}

// MediaStatus is a snapshot of the receiver player.
type MediaStatus struct {
	PlayerState string
	IdleReason  string
	// StreamPosition and StreamDuration are in seconds.
	StreamPosition float64
	StreamDuration float64
	Volume         float64
	Muted          bool
}
