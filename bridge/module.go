package bridge

import (
	"errors"
	"io"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"go2tv.app/castbridge/castframework"
	"go2tv.app/castbridge/internal/dispatch"
)

var (
	// ErrNoMediaClient completes calls made on a session without a media client.
	ErrNoMediaClient = errors.New("cast: session has no media client")
	// ErrNoPresenter completes LaunchExpandedControls when no presenter is set.
	ErrNoPresenter = errors.New("cast: no expanded controls presenter")
	// ErrCastingUnsupported completes StartSession when the cast context failed to initialize.
	ErrCastingUnsupported = errors.New("cast: casting not supported")
	// ErrModuleClosed completes calls made after Close.
	ErrModuleClosed = errors.New("cast: module closed")
	// ErrInvalidVolume completes SetVolume calls with a level outside 0..1.
	ErrInvalidVolume = errors.New("cast: volume must be between 0 and 1")
)

// ModuleOptions configures a Module.
type ModuleOptions struct {
	Emitter   Emitter
	Presenter Presenter
	// Queue runs module work and should also be the cast context's
	// executor. The module creates and owns one when nil.
	Queue     *dispatch.Queue
	LogOutput io.Writer
}

// Module is the host-facing cast facade.
type Module struct {
	castCtx          castframework.Context
	castingSupported *atomic.Bool
	queue            *dispatch.Queue
	ownsQueue        bool
	emitter          Emitter
	presenter        Presenter

	mu      sync.RWMutex
	session castframework.Session

	sessionListener *sessionListener
	stateListener   *stateListener
	mediaListener   *mediaStatusListener
	registered      bool // only touched on the queue

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// NewModule creates the facade over castCtx. When castingSupported is
// false castCtx may be nil and every control method is a no-op.
func NewModule(castCtx castframework.Context, castingSupported bool, o ModuleOptions) *Module {
	if castCtx == nil {
		castingSupported = false
	}

	m := &Module{
		castCtx:          castCtx,
		castingSupported: atomic.NewBool(castingSupported),
		queue:            o.Queue,
		emitter:          o.Emitter,
		presenter:        o.Presenter,
		LogOutput:        o.LogOutput,
	}

	if m.queue == nil {
		m.queue = dispatch.NewQueue()
		m.ownsQueue = true
	}

	if m.emitter == nil {
		m.emitter = discardEmitter{}
	}

	if castingSupported {
		m.sessionListener = &sessionListener{m: m}
		m.stateListener = &stateListener{m: m}
		m.mediaListener = newMediaStatusListener(m)
	}

	return m
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (m *Module) Log() *zerolog.Logger {
	if m.LogOutput != nil {
		m.initLogOnce.Do(func() {
			m.Logger = zerolog.New(m.LogOutput).With().Timestamp().Logger()
		})
	}
	return &m.Logger
}

// Name returns the module name.
func (m *Module) Name() string {
	return ModuleName
}

// Constants returns CASTING_SUPPORTED and every event name.
func (m *Module) Constants() map[string]any {
	constants := make(map[string]any, len(eventConstants)+1)
	constants["CASTING_SUPPORTED"] = m.castingSupported.Load()
	for k, v := range eventConstants {
		constants[k] = v
	}
	return constants
}

// CastingSupported reports whether the cast context initialized.
func (m *Module) CastingSupported() bool {
	return m.castingSupported.Load()
}

// Session returns the active session, or nil.
func (m *Module) Session() castframework.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Module) emit(event string, params Params) {
	m.Log().Debug().Str("Method", "emit").Str("Event", event).Interface("Params", params).Msg("event")
	m.emitter.Emit(event, params)
}

// post queues fn. When the queue is closed the call is completed with
// ErrModuleClosed and false is returned.
func post[T any](m *Module, c *Call[T], fn func()) *Call[T] {
	if !m.queue.Post(fn) {
		var zero T
		c.resolve(zero, ErrModuleClosed)
	}
	return c
}

// CastMedia loads d on the active session and starts playback at its
// position in milliseconds, or at 0 when it has none.
func (m *Module) CastMedia(d MediaDescriptor) *Call[struct{}] {
	s := m.Session()
	if s == nil {
		m.Log().Debug().Str("Method", "CastMedia").Msg("no active session")
		return CompletedCall(struct{}{}, nil)
	}

	c := newCall[struct{}]()
	return post(m, c, func() {
		rmc := s.RemoteMediaClient()
		if rmc == nil {
			m.Log().Error().Str("Method", "CastMedia").Msg("failed to cast, no client")
			c.resolve(struct{}{}, ErrNoMediaClient)
			return
		}

		info, err := BuildMediaInfo(d)
		if err != nil {
			m.Log().Error().Str("Method", "CastMedia").Err(err).Msg("invalid media descriptor")
			c.resolve(struct{}{}, err)
			return
		}

		var position int64
		if d.Position != nil {
			position = *d.Position
		}

		if m.mediaListener != nil {
			m.mediaListener.rearm()
		}

		m.Log().Debug().Str("Method", "CastMedia").Str("URL", info.ContentID).Int64("PositionMs", position).Msg("casting media")
		c.resolveFrom(rmc.Load(info, castframework.LoadOptions{
			Autoplay:     true,
			PlayPosition: position,
		}), struct{}{})
	})
}

// CastMediaParams is CastMedia for the generic map form of a descriptor.
func (m *Module) CastMediaParams(params map[string]any) *Call[struct{}] {
	if m.Session() == nil {
		return CompletedCall(struct{}{}, nil)
	}

	d, err := DescriptorFromMap(params)
	if err != nil {
		return CompletedCall(struct{}{}, err)
	}
	return m.CastMedia(d)
}

// control queues a media client request on the active session.
func (m *Module) control(method string, req func(castframework.RemoteMediaClient) castframework.PendingResult) *Call[struct{}] {
	s := m.Session()
	if s == nil {
		m.Log().Debug().Str("Method", method).Msg("no active session")
		return CompletedCall(struct{}{}, nil)
	}

	c := newCall[struct{}]()
	return post(m, c, func() {
		rmc := s.RemoteMediaClient()
		if rmc == nil {
			m.Log().Error().Str("Method", method).Msg("no media client")
			c.resolve(struct{}{}, ErrNoMediaClient)
			return
		}
		c.resolveFrom(req(rmc), struct{}{})
	})
}

// Play resumes playback.
func (m *Module) Play() *Call[struct{}] {
	return m.control("Play", castframework.RemoteMediaClient.Play)
}

// Pause pauses playback.
func (m *Module) Pause() *Call[struct{}] {
	return m.control("Pause", castframework.RemoteMediaClient.Pause)
}

// Stop stops playback.
func (m *Module) Stop() *Call[struct{}] {
	return m.control("Stop", castframework.RemoteMediaClient.Stop)
}

// Seek seeks to positionSeconds from the start of the media.
func (m *Module) Seek(positionSeconds int) *Call[struct{}] {
	return m.control("Seek", func(rmc castframework.RemoteMediaClient) castframework.PendingResult {
		return rmc.Seek(int64(positionSeconds) * 1000)
	})
}

// SetVolume sets the receiver volume, from 0 to 1.
func (m *Module) SetVolume(level float64) *Call[struct{}] {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return CompletedCall(struct{}{}, ErrInvalidVolume)
	}
	return m.control("SetVolume", func(rmc castframework.RemoteMediaClient) castframework.PendingResult {
		return rmc.SetStreamVolume(level)
	})
}

// SetMuted mutes or unmutes the receiver.
func (m *Module) SetMuted(muted bool) *Call[struct{}] {
	return m.control("SetMuted", func(rmc castframework.RemoteMediaClient) castframework.PendingResult {
		return rmc.SetStreamMute(muted)
	})
}

// GetCastState resolves the current cast state. It resolves NotConnected
// without queueing when casting is unsupported.
func (m *Module) GetCastState() *Call[castframework.CastState] {
	if !m.castingSupported.Load() {
		return CompletedCall(castframework.NotConnected, nil)
	}

	c := newCall[castframework.CastState]()
	return post(m, c, func() {
		c.resolve(m.castCtx.CastState(), nil)
	})
}

// EndSession ends the current session, stopping the receiver app when
// stopCasting is set. It resolves true once the request was issued.
func (m *Module) EndSession(stopCasting bool) *Call[bool] {
	if !m.castingSupported.Load() {
		return CompletedCall(false, nil)
	}

	c := newCall[bool]()
	return post(m, c, func() {
		m.Log().Debug().Str("Method", "EndSession").Bool("StopCasting", stopCasting).Msg("ending session")
		m.castCtx.SessionManager().EndCurrentSession(stopCasting)
		c.resolve(true, nil)
	})
}

// LaunchExpandedControls asks the presenter to show the expanded controls.
func (m *Module) LaunchExpandedControls() *Call[struct{}] {
	c := newCall[struct{}]()
	return post(m, c, func() {
		if m.presenter == nil {
			c.resolve(struct{}{}, ErrNoPresenter)
			return
		}
		c.resolve(struct{}{}, m.presenter.ShowExpandedControls())
	})
}

// StartSession asks the session manager to open a session with the device
// at deviceAddr. The outcome is delivered as session events.
func (m *Module) StartSession(deviceAddr string) *Call[struct{}] {
	if !m.castingSupported.Load() {
		return CompletedCall(struct{}{}, ErrCastingUnsupported)
	}

	c := newCall[struct{}]()
	return post(m, c, func() {
		err := m.castCtx.SessionManager().StartSession(deviceAddr)
		if err != nil {
			m.Log().Error().Str("Method", "StartSession").Str("Device", deviceAddr).Err(err).Msg("start session failed")
		}
		c.resolve(struct{}{}, err)
	})
}

// OnHostResume registers the state and session listeners. Repeated calls
// register them once.
func (m *Module) OnHostResume() {
	if !m.castingSupported.Load() {
		return
	}
	m.queue.Post(m.register)
}

// OnHostPause removes the listeners registered by OnHostResume.
func (m *Module) OnHostPause() {
	if !m.castingSupported.Load() {
		return
	}
	m.queue.Post(m.unregister)
}

// OnHostDestroy removes any listener registration left behind.
func (m *Module) OnHostDestroy() {
	m.OnHostPause()
}

// Close releases listener registrations and stops the module's queue if
// it owns it.
func (m *Module) Close() {
	if m.castingSupported.Load() {
		m.queue.Post(m.unregister)
	}
	if m.ownsQueue {
		m.queue.Close()
		return
	}
	m.queue.Flush()
}

func (m *Module) register() {
	if m.registered {
		return
	}
	m.registered = true

	m.castCtx.AddCastStateListener(m.stateListener)
	sm := m.castCtx.SessionManager()
	sm.AddSessionManagerListener(m.sessionListener)

	// Session callbacks are not delivered while paused, so the manager's
	// current session replaces whatever handle is held.
	if s := sm.CurrentSession(); s != nil && s.IsConnected() {
		m.setSession(s)
	} else if s := m.Session(); s != nil {
		m.Log().Debug().Str("Method", "register").Str("SessionID", s.SessionID()).Msg("dropping session ended while paused")
		m.clearSession(s)
	}

	m.Log().Debug().Str("Method", "register").Msg("listeners registered")
}

func (m *Module) unregister() {
	if !m.registered {
		return
	}
	m.registered = false

	m.castCtx.RemoveCastStateListener(m.stateListener)
	m.castCtx.SessionManager().RemoveSessionManagerListener(m.sessionListener)
	if s := m.Session(); s != nil {
		m.detachMedia(s)
	}

	m.Log().Debug().Str("Method", "unregister").Msg("listeners removed")
}

func (m *Module) setSession(s castframework.Session) {
	m.mu.Lock()
	prev := m.session
	m.session = s
	m.mu.Unlock()

	if prev != nil && prev != s {
		m.detachMedia(prev)
	}
	if prev != s && m.mediaListener != nil {
		m.mediaListener.rearm()
	}
	m.attachMedia(s)
}

func (m *Module) clearSession(s castframework.Session) {
	m.mu.Lock()
	prev := m.session
	if prev == s {
		m.session = nil
	}
	m.mu.Unlock()

	if s != nil {
		m.detachMedia(s)
	}
}

func (m *Module) attachMedia(s castframework.Session) {
	if m.mediaListener == nil {
		return
	}
	if rmc := s.RemoteMediaClient(); rmc != nil {
		rmc.AddListener(m.mediaListener)
	}
}

func (m *Module) detachMedia(s castframework.Session) {
	if m.mediaListener == nil {
		return
	}
	if rmc := s.RemoteMediaClient(); rmc != nil {
		rmc.RemoveListener(m.mediaListener)
	}
}
