package bridge

import (
	"go.uber.org/atomic"
	"go2tv.app/castbridge/castframework"
)

// sessionListener re-emits session manager callbacks and keeps the
// module's session handle current.
type sessionListener struct {
	m *Module
}

var _ castframework.SessionManagerListener = (*sessionListener)(nil)

func (l *sessionListener) OnSessionStarting(castframework.Session) {
	l.m.emit(SessionStarting, nil)
}

func (l *sessionListener) OnSessionStarted(s castframework.Session, _ string) {
	l.m.setSession(s)
	l.m.emit(SessionStarted, nil)
}

func (l *sessionListener) OnSessionStartFailed(_ castframework.Session, code castframework.StatusCode) {
	l.m.emit(SessionStartFailed, Params{"error": int(code)})
}

func (l *sessionListener) OnSessionSuspended(castframework.Session, int) {
	l.m.emit(SessionSuspended, nil)
}

func (l *sessionListener) OnSessionResuming(castframework.Session, string) {
	l.m.emit(SessionResuming, nil)
}

func (l *sessionListener) OnSessionResumed(s castframework.Session, _ bool) {
	l.m.setSession(s)
	l.m.emit(SessionResumed, nil)
}

func (l *sessionListener) OnSessionResumeFailed(s castframework.Session, code castframework.StatusCode) {
	l.m.Log().Error().Str("Method", "OnSessionResumeFailed").Str("SessionID", s.SessionID()).Int("Code", int(code)).Msg("session resume failed")
}

func (l *sessionListener) OnSessionEnding(castframework.Session) {
	l.m.emit(SessionEnding, nil)
}

func (l *sessionListener) OnSessionEnded(s castframework.Session, code castframework.StatusCode) {
	l.m.clearSession(s)

	var params Params
	if code != castframework.StatusSuccess {
		params = Params{"error": int(code)}
	}
	l.m.emit(SessionEnded, params)
}

// stateListener re-emits cast state changes.
type stateListener struct {
	m *Module
}

var _ castframework.CastStateListener = (*stateListener)(nil)

func (l *stateListener) OnCastStateChanged(state castframework.CastState) {
	l.m.emit(StateChanged, Params{"state": int(state)})
}

// mediaStatusListener re-emits media status updates and derives the
// playback started/ended events from them.
type mediaStatusListener struct {
	m       *Module
	started *atomic.Bool
}

var _ castframework.MediaClientListener = (*mediaStatusListener)(nil)

func newMediaStatusListener(m *Module) *mediaStatusListener {
	return &mediaStatusListener{
		m:       m,
		started: atomic.NewBool(false),
	}
}

// rearm lets the next PLAYING status emit MediaPlaybackStarted again.
func (l *mediaStatusListener) rearm() {
	l.started.Store(false)
}

func (l *mediaStatusListener) OnStatusUpdated(st castframework.MediaStatus) {
	l.m.emit(MediaStatusUpdated, Params{"mediaStatus": mediaStatusParams(st)})

	switch {
	case st.PlayerState == castframework.PlayerStatePlaying:
		if l.started.CompareAndSwap(false, true) {
			l.m.emit(MediaPlaybackStarted, nil)
		}
	case st.PlayerState == castframework.PlayerStateIdle && st.IdleReason == castframework.IdleReasonFinished:
		l.rearm()
		l.m.emit(MediaPlaybackEnded, nil)
	}
}

func mediaStatusParams(st castframework.MediaStatus) Params {
	return Params{
		"playerState":    st.PlayerState,
		"idleReason":     st.IdleReason,
		"streamPosition": st.StreamPosition,
		"streamDuration": st.StreamDuration,
		"volume":         st.Volume,
		"muted":          st.Muted,
	}
}
