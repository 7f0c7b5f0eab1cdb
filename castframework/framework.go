// Package castframework is the cast SDK surface that the bridge talks to:
// a cast context, its session manager, sessions and their remote media
// clients, plus the listener interfaces they report through.
//
// The interfaces mirror the Google Cast sender framework so that a host can
// substitute its own implementation. ChromecastContext is the implementation
// backed by castprotocol and devices.
package castframework

import "strconv"

// CastState is the discovery/connectivity state of the cast context.
type CastState int

// Values match the Android cast framework.
const (
	NoDevicesAvailable CastState = 1
	NotConnected       CastState = 2
	Connecting         CastState = 3
	Connected          CastState = 4
)

func (s CastState) String() string {
	switch s {
	case NoDevicesAvailable:
		return "NO_DEVICES_AVAILABLE"
	case NotConnected:
		return "NOT_CONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "CastState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Reasons passed to OnSessionSuspended.
const (
	SuspendReasonServiceDisconnected = 1
	SuspendReasonNetworkLost         = 2
)

// Context is the process-wide entry point of the cast framework.
type Context interface {
	CastState() CastState
	SessionManager() SessionManager
	AddCastStateListener(l CastStateListener)
	RemoveCastStateListener(l CastStateListener)
}

// SessionManager owns the lifecycle of cast sessions.
type SessionManager interface {
	// CurrentSession returns the active session or nil.
	CurrentSession() Session
	// StartSession begins connecting to deviceAddr. Progress is reported
	// to session manager listeners.
	StartSession(deviceAddr string) error
	// EndCurrentSession ends the active session, stopping the receiver
	// application when stopCasting is true.
	EndCurrentSession(stopCasting bool)
	AddSessionManagerListener(l SessionManagerListener)
	RemoveSessionManagerListener(l SessionManagerListener)
}

// Session is a live connection to a receiver device.
type Session interface {
	SessionID() string
	DeviceAddr() string
	IsConnected() bool
	// RemoteMediaClient returns the media control channel, or nil when
	// the session has none.
	RemoteMediaClient() RemoteMediaClient
}

// RemoteMediaClient controls playback on a session. Requests are executed
// in submission order and complete through the returned PendingResult.
type RemoteMediaClient interface {
	Load(info MediaInfo, opts LoadOptions) PendingResult
	Play() PendingResult
	Pause() PendingResult
	Stop() PendingResult
	// Seek moves to positionMs milliseconds from the start.
	Seek(positionMs int64) PendingResult
	// SetStreamVolume sets the receiver volume, from 0 to 1.
	SetStreamVolume(level float64) PendingResult
	SetStreamMute(muted bool) PendingResult
	// MediaStatus returns the last known status, or nil before the first update.
	MediaStatus() *MediaStatus
	AddListener(l MediaClientListener)
	RemoveListener(l MediaClientListener)
}

// CastStateListener receives cast state changes.
type CastStateListener interface {
	OnCastStateChanged(state CastState)
}

// SessionManagerListener receives session lifecycle callbacks.
type SessionManagerListener interface {
	OnSessionStarting(s Session)
	OnSessionStarted(s Session, sessionID string)
	OnSessionStartFailed(s Session, code StatusCode)
	OnSessionEnding(s Session)
	OnSessionEnded(s Session, code StatusCode)
	OnSessionResuming(s Session, sessionID string)
	OnSessionResumed(s Session, wasSuspended bool)
	OnSessionResumeFailed(s Session, code StatusCode)
	OnSessionSuspended(s Session, reason int)
}

// MediaClientListener receives media status updates.
type MediaClientListener interface {
	OnStatusUpdated(status MediaStatus)
}
