package bridge

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go2tv.app/castbridge/castframework"
)

func wait[T any](t *testing.T, c *Call[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

// newActiveModule returns a module with a started session backed by rmc.
func newActiveModule(t *testing.T, rmc *mockMediaClient) (*Module, *fakeCastContext, *eventLog) {
	t.Helper()

	fc := &fakeCastContext{state: castframework.NotConnected}
	events := &eventLog{}
	m := NewModule(fc, true, ModuleOptions{Emitter: events})
	t.Cleanup(m.Close)

	rmc.On("AddListener", mock.Anything).Return()
	rmc.On("RemoveListener", mock.Anything).Maybe().Return()

	m.sessionListener.OnSessionStarted(&fakeSession{id: "s1", rmc: rmc}, "s1")
	require.NotNil(t, m.Session())

	return m, fc, events
}

func TestCastMediaScenario(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	rmc.On("Load",
		mock.MatchedBy(func(info castframework.MediaInfo) bool {
			return info.ContentID == "http://x/a.mp4" &&
				info.StreamType == castframework.StreamTypeBuffered &&
				info.ContentType == "video/mp4" &&
				info.Metadata != nil &&
				info.Metadata.Title == "T"
		}),
		castframework.LoadOptions{Autoplay: true, PlayPosition: 0},
	).Return(castframework.Completed(nil)).Once()

	c := m.CastMediaParams(map[string]any{"mediaUrl": "http://x/a.mp4", "title": "T"})
	require.True(t, c.Accepted())

	_, err := wait(t, c)
	require.NoError(t, err)
	rmc.AssertExpectations(t)
}

func TestCastMediaPosition(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	pos := int64(95000)
	rmc.On("Load", mock.Anything, castframework.LoadOptions{Autoplay: true, PlayPosition: 95000}).
		Return(castframework.Completed(nil)).Once()

	_, err := wait(t, m.CastMedia(MediaDescriptor{MediaURL: "http://x/a.mp4", Position: &pos}))
	require.NoError(t, err)
	rmc.AssertExpectations(t)
}

func TestCastMediaParamsPositionIsMilliseconds(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	rmc.On("Load",
		mock.MatchedBy(func(info castframework.MediaInfo) bool {
			return info.StreamDuration == 596000
		}),
		castframework.LoadOptions{Autoplay: true, PlayPosition: 5000},
	).Return(castframework.Completed(nil)).Once()

	// JSON hosts deliver numbers as float64.
	_, err := wait(t, m.CastMediaParams(map[string]any{
		"mediaUrl": "http://x/a.mp4",
		"position": float64(5000),
		"duration": float64(596000),
	}))
	require.NoError(t, err)
	rmc.AssertExpectations(t)
}

func TestCastMediaLoadError(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	boom := errors.New("load failed")
	rmc.On("Load", mock.Anything, mock.Anything).Return(castframework.Completed(boom)).Once()

	_, err := wait(t, m.CastMedia(MediaDescriptor{MediaURL: "http://x/a.mp4"}))
	require.ErrorIs(t, err, boom)
}

func TestCastMediaInvalidCustomData(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	c := m.CastMedia(MediaDescriptor{
		MediaURL:   "http://x/a.mp4",
		CustomData: map[string]any{"cb": func() {}},
	})
	_, err := wait(t, c)
	require.ErrorIs(t, err, ErrInvalidCustomData)
	rmc.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestSeekDelegatesMilliseconds(t *testing.T) {
	tt := []int{0, 1, 42, 3600}

	for _, n := range tt {
		rmc := &mockMediaClient{}
		m, _, _ := newActiveModule(t, rmc)
		rmc.On("Seek", int64(n)*1000).Return(castframework.Completed(nil)).Once()

		if _, err := wait(t, m.Seek(n)); err != nil {
			t.Fatalf("Seek(%d): got %v, want nil", n, err)
		}
		rmc.AssertExpectations(t)
	}
}

func TestControlsDelegate(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	rmc.On("Play").Return(castframework.Completed(nil)).Once()
	rmc.On("Pause").Return(castframework.Completed(nil)).Once()
	rmc.On("Stop").Return(castframework.Completed(nil)).Once()

	for _, c := range []*Call[struct{}]{m.Play(), m.Pause(), m.Stop()} {
		require.True(t, c.Accepted())
		_, err := wait(t, c)
		require.NoError(t, err)
	}
	rmc.AssertExpectations(t)
}

func TestVolumeAndMute(t *testing.T) {
	rmc := &mockMediaClient{}
	m, _, _ := newActiveModule(t, rmc)

	rmc.On("SetStreamVolume", 0.4).Return(castframework.Completed(nil)).Once()
	rmc.On("SetStreamMute", true).Return(castframework.Completed(nil)).Once()

	_, err := wait(t, m.SetVolume(0.4))
	require.NoError(t, err)
	_, err = wait(t, m.SetMuted(true))
	require.NoError(t, err)

	for _, level := range []float64{-0.1, 1.5, math.NaN()} {
		c := m.SetVolume(level)
		require.False(t, c.Accepted())
		_, err := wait(t, c)
		require.ErrorIs(t, err, ErrInvalidVolume)
	}
	rmc.AssertExpectations(t)
}

func TestNoSessionNoDelegation(t *testing.T) {
	fc := &fakeCastContext{}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	pos := int64(10000)
	calls := []*Call[struct{}]{
		m.Play(),
		m.Pause(),
		m.Stop(),
		m.Seek(30),
		m.SetVolume(0.5),
		m.SetMuted(true),
		m.CastMedia(MediaDescriptor{MediaURL: "http://x/a.mp4", Position: &pos}),
		m.CastMediaParams(map[string]any{"mediaUrl": "http://x/a.mp4"}),
	}

	for i, c := range calls {
		if c.Accepted() {
			t.Fatalf("call %d: got accepted, want guarded no-op", i)
		}
		select {
		case <-c.Done():
		default:
			t.Fatalf("call %d: not completed", i)
		}
		require.NoError(t, c.Err())
	}
}

func TestNoMediaClient(t *testing.T) {
	fc := &fakeCastContext{}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	m.sessionListener.OnSessionStarted(&fakeSession{id: "s1"}, "s1")

	_, err := wait(t, m.Play())
	require.ErrorIs(t, err, ErrNoMediaClient)

	_, err = wait(t, m.CastMedia(MediaDescriptor{MediaURL: "http://x/a.mp4"}))
	require.ErrorIs(t, err, ErrNoMediaClient)
}

func TestGetCastState(t *testing.T) {
	fc := &fakeCastContext{state: castframework.Connected}

	unsupported := NewModule(fc, false, ModuleOptions{})
	t.Cleanup(unsupported.Close)

	c := unsupported.GetCastState()
	require.False(t, c.Accepted())
	state, err := wait(t, c)
	require.NoError(t, err)
	require.Equal(t, castframework.NotConnected, state)

	supported := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(supported.Close)

	state, err = wait(t, supported.GetCastState())
	require.NoError(t, err)
	require.Equal(t, castframework.Connected, state)
}

func TestEndSession(t *testing.T) {
	fc := &fakeCastContext{}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	ok, err := wait(t, m.EndSession(true))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []bool{true}, fc.ended)

	unsupported := NewModule(nil, true, ModuleOptions{})
	t.Cleanup(unsupported.Close)
	c := unsupported.EndSession(false)
	require.False(t, c.Accepted())
	require.False(t, c.Value())
}

func TestStartSession(t *testing.T) {
	fc := &fakeCastContext{}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	_, err := wait(t, m.StartSession("10.0.0.9:8009"))
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.9:8009"}, fc.started)

	fc.startErr = castframework.ErrSessionActive
	_, err = wait(t, m.StartSession("10.0.0.9:8009"))
	require.ErrorIs(t, err, castframework.ErrSessionActive)

	unsupported := NewModule(nil, false, ModuleOptions{})
	t.Cleanup(unsupported.Close)
	_, err = wait(t, unsupported.StartSession("10.0.0.9:8009"))
	require.ErrorIs(t, err, ErrCastingUnsupported)
}

type presenterFunc func() error

func (f presenterFunc) ShowExpandedControls() error { return f() }

func TestLaunchExpandedControls(t *testing.T) {
	m := NewModule(nil, false, ModuleOptions{})
	t.Cleanup(m.Close)

	_, err := wait(t, m.LaunchExpandedControls())
	require.ErrorIs(t, err, ErrNoPresenter)

	var shown int
	withPresenter := NewModule(nil, false, ModuleOptions{Presenter: presenterFunc(func() error {
		shown++
		return nil
	})})
	t.Cleanup(withPresenter.Close)

	c := withPresenter.LaunchExpandedControls()
	require.True(t, c.Accepted())
	_, err = wait(t, c)
	require.NoError(t, err)
	require.Equal(t, 1, shown)
}

func TestLifecycleRegistration(t *testing.T) {
	fc := &fakeCastContext{}
	events := &eventLog{}
	m := NewModule(fc, true, ModuleOptions{Emitter: events})
	t.Cleanup(m.Close)

	m.OnHostResume()
	m.OnHostResume()
	m.queue.Flush()

	require.Len(t, fc.stateListeners, 1)
	require.Len(t, fc.sessionListeners, 1)

	fc.fireState(castframework.Connecting)
	require.Equal(t, []string{StateChanged}, events.names())
	require.Equal(t, Params{"state": 3}, events.all()[0].params)

	m.OnHostPause()
	m.queue.Flush()

	require.Empty(t, fc.stateListeners)
	require.Empty(t, fc.sessionListeners)

	fc.fireState(castframework.Connected)
	fc.fireSession(func(l castframework.SessionManagerListener) { l.OnSessionStarting(nil) })
	require.Len(t, events.all(), 1)

	// Resume after pause registers again.
	m.OnHostResume()
	m.OnHostDestroy()
	m.queue.Flush()
	require.Empty(t, fc.stateListeners)
}

func TestLifecycleUnsupported(t *testing.T) {
	fc := &fakeCastContext{}
	m := NewModule(fc, false, ModuleOptions{})
	t.Cleanup(m.Close)

	m.OnHostResume()
	m.queue.Flush()
	require.Empty(t, fc.stateListeners)
}

func TestResumeAdoptsCurrentSession(t *testing.T) {
	rmc := &mockMediaClient{}
	rmc.On("AddListener", mock.Anything).Return().Once()
	rmc.On("RemoveListener", mock.Anything).Maybe().Return()

	fc := &fakeCastContext{current: &fakeSession{id: "bg", rmc: rmc}}
	events := &eventLog{}
	m := NewModule(fc, true, ModuleOptions{Emitter: events})
	t.Cleanup(m.Close)

	m.OnHostResume()
	m.queue.Flush()

	require.NotNil(t, m.Session())
	require.Equal(t, "bg", m.Session().SessionID())
	require.Empty(t, events.all())
	rmc.AssertExpectations(t)
}

func TestResumeDropsSessionEndedWhilePaused(t *testing.T) {
	rmc := &mockMediaClient{}
	rmc.On("AddListener", mock.Anything).Return()
	rmc.On("RemoveListener", mock.Anything).Return()

	s := &fakeSession{id: "s1", rmc: rmc}
	fc := &fakeCastContext{current: s}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	m.OnHostResume()
	m.queue.Flush()
	require.NotNil(t, m.Session())

	m.OnHostPause()
	m.queue.Flush()

	// The session ends while no listener is registered.
	fc.mu.Lock()
	fc.current = nil
	fc.mu.Unlock()
	fc.fireSession(func(l castframework.SessionManagerListener) {
		l.OnSessionEnded(s, castframework.StatusSuccess)
	})

	m.OnHostResume()
	m.queue.Flush()
	require.Nil(t, m.Session())

	c := m.Play()
	require.False(t, c.Accepted())
	_, err := wait(t, c)
	require.NoError(t, err)
	rmc.AssertNotCalled(t, "Play")
}

func TestResumeReplacesSessionChangedWhilePaused(t *testing.T) {
	oldRMC := &mockMediaClient{}
	oldRMC.On("AddListener", mock.Anything).Return()
	oldRMC.On("RemoveListener", mock.Anything).Return()
	newRMC := &mockMediaClient{}
	newRMC.On("AddListener", mock.Anything).Return()
	newRMC.On("RemoveListener", mock.Anything).Maybe().Return()
	newRMC.On("Play").Return(castframework.Completed(nil)).Once()

	fc := &fakeCastContext{current: &fakeSession{id: "old", rmc: oldRMC}}
	m := NewModule(fc, true, ModuleOptions{})
	t.Cleanup(m.Close)

	m.OnHostResume()
	m.OnHostPause()
	m.queue.Flush()

	fc.mu.Lock()
	fc.current = &fakeSession{id: "new", rmc: newRMC}
	fc.mu.Unlock()

	m.OnHostResume()
	m.queue.Flush()
	require.Equal(t, "new", m.Session().SessionID())

	_, err := wait(t, m.Play())
	require.NoError(t, err)
	oldRMC.AssertNotCalled(t, "Play")
	newRMC.AssertExpectations(t)
}

func TestSessionEvents(t *testing.T) {
	rmc := &mockMediaClient{}
	rmc.On("AddListener", mock.Anything).Return()
	rmc.On("RemoveListener", mock.Anything).Return()

	fc := &fakeCastContext{}
	events := &eventLog{}
	m := NewModule(fc, true, ModuleOptions{Emitter: events})
	t.Cleanup(m.Close)

	s := &fakeSession{id: "s1", rmc: rmc}
	l := m.sessionListener

	l.OnSessionStarting(s)
	l.OnSessionStartFailed(s, castframework.StatusNetworkError)
	l.OnSessionStarting(s)
	l.OnSessionStarted(s, "s1")
	require.Equal(t, s, m.Session())

	l.OnSessionSuspended(s, castframework.SuspendReasonNetworkLost)
	l.OnSessionResuming(s, "s1")
	l.OnSessionResumed(s, true)
	l.OnSessionResumeFailed(s, castframework.StatusTimeout)
	l.OnSessionEnding(s)
	l.OnSessionEnded(s, castframework.StatusSuccess)
	require.Nil(t, m.Session())

	l.OnSessionEnded(s, castframework.StatusNetworkError)

	want := []emitted{
		{SessionStarting, nil},
		{SessionStartFailed, Params{"error": 7}},
		{SessionStarting, nil},
		{SessionStarted, nil},
		{SessionSuspended, nil},
		{SessionResuming, nil},
		{SessionResumed, nil},
		{SessionEnding, nil},
		{SessionEnded, nil},
		{SessionEnded, Params{"error": 7}},
	}
	require.Equal(t, want, events.all())
	rmc.AssertCalled(t, "RemoveListener", m.mediaListener)
}

func TestMediaStatusEvents(t *testing.T) {
	events := &eventLog{}
	m := NewModule(&fakeCastContext{}, true, ModuleOptions{Emitter: events})
	t.Cleanup(m.Close)

	l := m.mediaListener
	playing := castframework.MediaStatus{PlayerState: castframework.PlayerStatePlaying, StreamDuration: 60}
	finished := castframework.MediaStatus{PlayerState: castframework.PlayerStateIdle, IdleReason: castframework.IdleReasonFinished}

	l.OnStatusUpdated(castframework.MediaStatus{PlayerState: castframework.PlayerStateBuffering})
	l.OnStatusUpdated(playing)
	l.OnStatusUpdated(playing)
	l.OnStatusUpdated(finished)
	l.OnStatusUpdated(playing)

	want := []string{
		MediaStatusUpdated,
		MediaStatusUpdated, MediaPlaybackStarted,
		MediaStatusUpdated,
		MediaStatusUpdated, MediaPlaybackEnded,
		MediaStatusUpdated, MediaPlaybackStarted,
	}
	require.Equal(t, want, events.names())

	status := events.all()[1].params["mediaStatus"].(Params)
	require.Equal(t, castframework.PlayerStatePlaying, status["playerState"])
	require.Equal(t, float64(60), status["streamDuration"])
}

func TestConstants(t *testing.T) {
	m := NewModule(nil, false, ModuleOptions{})
	t.Cleanup(m.Close)

	constants := m.Constants()
	require.Equal(t, false, constants["CASTING_SUPPORTED"])
	require.Len(t, constants, 13)
	require.Equal(t, "GoogleCast:SessionStarted", constants["SESSION_STARTED"])
	require.Equal(t, "GoogleCast:MediaPlaybackEnded", constants["MEDIA_PLAYBACK_ENDED"])
	require.Equal(t, "RNGoogleCast", m.Name())
}

func TestCallsAfterClose(t *testing.T) {
	m := NewModule(&fakeCastContext{}, true, ModuleOptions{})
	m.Close()

	_, err := wait(t, m.GetCastState())
	require.ErrorIs(t, err, ErrModuleClosed)
}

func TestPackage(t *testing.T) {
	p := NewPackage(func(castframework.Executor) (castframework.Context, error) {
		return nil, castframework.ErrCastUnavailable
	}, nil)
	t.Cleanup(p.Close)

	require.False(t, p.CastingSupported())
	require.Nil(t, p.CastContext())

	m := p.CreateModule(nil, nil)
	require.False(t, m.CastingSupported())
	state, err := wait(t, m.GetCastState())
	require.NoError(t, err)
	require.Equal(t, castframework.NotConnected, state)

	fc := &fakeCastContext{state: castframework.NoDevicesAvailable}
	var exec castframework.Executor
	ok := NewPackage(func(e castframework.Executor) (castframework.Context, error) {
		exec = e
		return fc, nil
	}, nil)
	t.Cleanup(ok.Close)

	require.True(t, ok.CastingSupported())
	require.NotNil(t, exec)

	events := &eventLog{}
	sm := ok.CreateModule(events, nil)
	sm.OnHostResume()

	// Framework callbacks posted to the shared executor run after the
	// registration queued before them.
	done := make(chan struct{})
	exec.Post(func() {
		fc.fireState(castframework.NotConnected)
		close(done)
	})
	<-done
	require.Equal(t, []string{StateChanged}, events.names())
}
