// Package bridge exposes cast session and media control to a host
// application as a fixed set of methods and named events.
package bridge

// ModuleName is the name the module registers under with the host.
const ModuleName = "RNGoogleCast"

// Event names delivered to the host Emitter.
const (
	SessionStarting      = "GoogleCast:SessionStarting"
	SessionStarted       = "GoogleCast:SessionStarted"
	SessionStartFailed   = "GoogleCast:SessionStartFailed"
	SessionSuspended     = "GoogleCast:SessionSuspended"
	SessionResuming      = "GoogleCast:SessionResuming"
	SessionResumed       = "GoogleCast:SessionResumed"
	SessionEnding        = "GoogleCast:SessionEnding"
	SessionEnded         = "GoogleCast:SessionEnded"
	StateChanged         = "GoogleCast:StateChanged"
	MediaStatusUpdated   = "GoogleCast:MediaStatusUpdated"
	MediaPlaybackStarted = "GoogleCast:MediaPlaybackStarted"
	MediaPlaybackEnded   = "GoogleCast:MediaPlaybackEnded"
)

// eventConstants maps constant table keys to event names.
var eventConstants = map[string]string{
	"SESSION_STARTING":       SessionStarting,
	"SESSION_STARTED":        SessionStarted,
	"SESSION_START_FAILED":   SessionStartFailed,
	"SESSION_SUSPENDED":      SessionSuspended,
	"SESSION_RESUMING":       SessionResuming,
	"SESSION_RESUMED":        SessionResumed,
	"SESSION_ENDING":         SessionEnding,
	"SESSION_ENDED":          SessionEnded,
	"STATE_CHANGED":          StateChanged,
	"MEDIA_STATUS_UPDATED":   MediaStatusUpdated,
	"MEDIA_PLAYBACK_STARTED": MediaPlaybackStarted,
	"MEDIA_PLAYBACK_ENDED":   MediaPlaybackEnded,
}

// Params is an event payload. It is nil for events without one.
type Params map[string]any

// Emitter receives module events. Emit is always called from the
// module's dispatch queue.
type Emitter interface {
	Emit(event string, params Params)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, params Params)

// Emit calls f(event, params).
func (f EmitterFunc) Emit(event string, params Params) {
	f(event, params)
}

// Presenter shows the expanded controls surface.
type Presenter interface {
	ShowExpandedControls() error
}

type discardEmitter struct{}

func (discardEmitter) Emit(string, Params) {}
