package bridge

import (
	"sync"

	"github.com/stretchr/testify/mock"
	"go2tv.app/castbridge/castframework"
)

type mockMediaClient struct {
	mock.Mock
}

func pending(args mock.Arguments) castframework.PendingResult {
	if pr, ok := args.Get(0).(castframework.PendingResult); ok {
		return pr
	}
	return castframework.Completed(args.Error(0))
}

func (m *mockMediaClient) Load(info castframework.MediaInfo, opts castframework.LoadOptions) castframework.PendingResult {
	return pending(m.Called(info, opts))
}

func (m *mockMediaClient) Play() castframework.PendingResult  { return pending(m.Called()) }
func (m *mockMediaClient) Pause() castframework.PendingResult { return pending(m.Called()) }
func (m *mockMediaClient) Stop() castframework.PendingResult  { return pending(m.Called()) }

func (m *mockMediaClient) Seek(positionMs int64) castframework.PendingResult {
	return pending(m.Called(positionMs))
}

func (m *mockMediaClient) SetStreamVolume(level float64) castframework.PendingResult {
	return pending(m.Called(level))
}

func (m *mockMediaClient) SetStreamMute(muted bool) castframework.PendingResult {
	return pending(m.Called(muted))
}

func (m *mockMediaClient) MediaStatus() *castframework.MediaStatus { return nil }

func (m *mockMediaClient) AddListener(l castframework.MediaClientListener) { m.Called(l) }

func (m *mockMediaClient) RemoveListener(l castframework.MediaClientListener) { m.Called(l) }

type fakeSession struct {
	id  string
	rmc castframework.RemoteMediaClient
}

func (s *fakeSession) SessionID() string  { return s.id }
func (s *fakeSession) DeviceAddr() string { return "10.0.0.9:8009" }
func (s *fakeSession) IsConnected() bool  { return true }

func (s *fakeSession) RemoteMediaClient() castframework.RemoteMediaClient {
	return s.rmc
}

// fakeCastContext records registrations without deduplicating them, so
// tests observe exactly what the module registered.
type fakeCastContext struct {
	mu               sync.Mutex
	state            castframework.CastState
	current          castframework.Session
	stateListeners   []castframework.CastStateListener
	sessionListeners []castframework.SessionManagerListener
	ended            []bool
	started          []string
	startErr         error
}

func (f *fakeCastContext) CastState() castframework.CastState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCastContext) SessionManager() castframework.SessionManager { return f }

func (f *fakeCastContext) AddCastStateListener(l castframework.CastStateListener) {
	f.mu.Lock()
	f.stateListeners = append(f.stateListeners, l)
	f.mu.Unlock()
}

func (f *fakeCastContext) RemoveCastStateListener(l castframework.CastStateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.stateListeners {
		if item == l {
			f.stateListeners = append(f.stateListeners[:i], f.stateListeners[i+1:]...)
			return
		}
	}
}

func (f *fakeCastContext) CurrentSession() castframework.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeCastContext) StartSession(deviceAddr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, deviceAddr)
	return f.startErr
}

func (f *fakeCastContext) EndCurrentSession(stopCasting bool) {
	f.mu.Lock()
	f.ended = append(f.ended, stopCasting)
	f.mu.Unlock()
}

func (f *fakeCastContext) AddSessionManagerListener(l castframework.SessionManagerListener) {
	f.mu.Lock()
	f.sessionListeners = append(f.sessionListeners, l)
	f.mu.Unlock()
}

func (f *fakeCastContext) RemoveSessionManagerListener(l castframework.SessionManagerListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.sessionListeners {
		if item == l {
			f.sessionListeners = append(f.sessionListeners[:i], f.sessionListeners[i+1:]...)
			return
		}
	}
}

func (f *fakeCastContext) fireState(state castframework.CastState) {
	f.mu.Lock()
	f.state = state
	ls := append([]castframework.CastStateListener(nil), f.stateListeners...)
	f.mu.Unlock()

	for _, l := range ls {
		l.OnCastStateChanged(state)
	}
}

func (f *fakeCastContext) fireSession(fn func(castframework.SessionManagerListener)) {
	f.mu.Lock()
	ls := append([]castframework.SessionManagerListener(nil), f.sessionListeners...)
	f.mu.Unlock()

	for _, l := range ls {
		fn(l)
	}
}

type emitted struct {
	name   string
	params Params
}

type eventLog struct {
	mu     sync.Mutex
	events []emitted
}

func (e *eventLog) Emit(name string, params Params) {
	e.mu.Lock()
	e.events = append(e.events, emitted{name: name, params: params})
	e.mu.Unlock()
}

func (e *eventLog) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

func (e *eventLog) names() []string {
	var names []string
	for _, ev := range e.all() {
		names = append(names, ev.name)
	}
	return names
}
