package castprotocol

import (
	"fmt"
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

const (
	// DefaultReceiverAppID is the Google default media receiver.
	DefaultReceiverAppID = "CC1AD845"

	namespaceReceiver = "urn:x-cast:com.google.cast.receiver"
	namespaceMedia    = "urn:x-cast:com.google.cast.media"
	defaultSender     = "sender-0"
	defaultReceiver   = "receiver-0"
)

// Request ID counter for Chromecast messages
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}

// LoadPayload is the LOAD command sent to the media receiver.
type LoadPayload struct {
	Type        string    `json:"type"`
	RequestId   int       `json:"requestId"`
	Media       MediaItem `json:"media"`
	CurrentTime float64   `json:"currentTime"`
	Autoplay    bool      `json:"autoplay"`
}

// SetRequestId implements cast.Payload interface
func (p *LoadPayload) SetRequestId(id int) {
	p.RequestId = id
}

// LaunchPayload is the LAUNCH command sent to the platform receiver.
type LaunchPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	AppId     string `json:"appId"`
}

// SetRequestId implements cast.Payload interface
func (p *LaunchPayload) SetRequestId(id int) {
	p.RequestId = id
}

// Ensure our payloads implement the cast.Payload interface
var (
	_ cast.Payload = (*LoadPayload)(nil)
	_ cast.Payload = (*LaunchPayload)(nil)
)

// NewLoadPayload builds the LOAD payload for req. An empty stream type
// falls back to BUFFERED and missing metadata to a generic entry.
func NewLoadPayload(req LoadRequest) *LoadPayload {
	media := req.Media
	if media.StreamType == "" {
		media.StreamType = StreamTypeBuffered
	}

	if media.Metadata == nil {
		media.Metadata = &MediaMeta{MetadataType: MetadataTypeGeneric}
	}

	return &LoadPayload{
		Type:        "LOAD",
		Media:       media,
		CurrentTime: req.StartTime,
		Autoplay:    req.Autoplay,
	}
}

// LaunchDefaultReceiver asks the device to start the default media receiver
// without loading anything on it.
func LaunchDefaultReceiver(conn cast.Conn) error {
	payload := &LaunchPayload{
		Type:  "LAUNCH",
		AppId: DefaultReceiverAppID,
	}

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultReceiver, namespaceReceiver); err != nil {
		return fmt.Errorf("send launch: %w", err)
	}

	return nil
}

// SendLoad sends a LOAD command to the media receiver identified by transportId.
// This is called after the receiver application has been launched.
func SendLoad(conn cast.Conn, transportId string, req LoadRequest) error {
	payload := NewLoadPayload(req)

	requestID := nextRequestID()
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, transportId, namespaceMedia); err != nil {
		return fmt.Errorf("send load: %w", err)
	}

	return nil
}
