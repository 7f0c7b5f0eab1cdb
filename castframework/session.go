package castframework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/internal/dispatch"
)

type sessionPhase int

const (
	phaseIdle sessionPhase = iota
	phaseConnecting
	phaseConnected
	phaseSuspended
)

type sessionManager struct {
	owner          *ChromecastContext
	newClient      ClientFactory
	statusInterval time.Duration
	suspendAfter   int
	listeners      listenerSet[SessionManagerListener]

	mu      sync.Mutex
	phase   sessionPhase
	pending *chromecastSession // connecting, not yet started
	current *chromecastSession
}

var _ SessionManager = (*sessionManager)(nil)

func (m *sessionManager) currentPhase() sessionPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// dispatch posts fn for every listener registered at the time it runs.
func (m *sessionManager) dispatch(fn func(l SessionManagerListener)) {
	m.owner.executor.Post(func() {
		for _, l := range m.listeners.snapshot() {
			fn(l)
		}
	})
}

func (m *sessionManager) CurrentSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	return m.current
}

func (m *sessionManager) AddSessionManagerListener(l SessionManagerListener) {
	if l == nil {
		return
	}
	if m.listeners.add(l) {
		m.owner.Log().Debug().Str("Method", "AddSessionManagerListener").Int("Listeners", m.listeners.len()).Msg("listener added")
	}
}

func (m *sessionManager) RemoveSessionManagerListener(l SessionManagerListener) {
	if l == nil {
		return
	}
	if m.listeners.remove(l) {
		m.owner.Log().Debug().Str("Method", "RemoveSessionManagerListener").Int("Listeners", m.listeners.len()).Msg("listener removed")
	}
}

// StartSession creates a client for deviceAddr and connects it in the
// background. The outcome is reported as started or start-failed.
func (m *sessionManager) StartSession(deviceAddr string) error {
	m.mu.Lock()
	if m.phase != phaseIdle {
		m.mu.Unlock()
		return ErrSessionActive
	}

	client, err := m.newClient(deviceAddr)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("start session: %w", err)
	}

	s := newChromecastSession(m, deviceAddr, client)
	m.pending = s
	m.phase = phaseConnecting
	m.mu.Unlock()

	m.owner.Log().Debug().Str("Method", "StartSession").Str("Device", deviceAddr).Str("SessionID", s.id).Msg("session starting")
	m.owner.refreshState()
	m.dispatch(func(l SessionManagerListener) { l.OnSessionStarting(s) })

	go m.connect(s)
	return nil
}

func (m *sessionManager) connect(s *chromecastSession) {
	err := s.client.Connect()

	m.mu.Lock()
	if m.pending != s || s.closing {
		// EndCurrentSession took over while we were connecting.
		m.mu.Unlock()
		return
	}
	m.pending = nil

	if err != nil {
		m.phase = phaseIdle
		m.mu.Unlock()

		code := StatusCodeFromError(err)
		m.owner.Log().Error().Str("Method", "connect").Str("SessionID", s.id).Int("Code", int(code)).Err(err).Msg("session start failed")
		m.owner.refreshState()
		m.dispatch(func(l SessionManagerListener) { l.OnSessionStartFailed(s, code) })
		return
	}

	m.phase = phaseConnected
	m.current = s
	s.connected.Store(true)
	m.mu.Unlock()

	m.owner.Log().Debug().Str("Method", "connect").Str("SessionID", s.id).Msg("session started")
	m.owner.refreshState()
	m.dispatch(func(l SessionManagerListener) { l.OnSessionStarted(s, s.id) })
	s.watch()
}

// EndCurrentSession ends the current (or connecting) session in the background.
func (m *sessionManager) EndCurrentSession(stopCasting bool) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		s = m.pending
	}
	if s == nil || s.closing {
		m.mu.Unlock()
		m.owner.Log().Debug().Str("Method", "EndCurrentSession").Msg("no session to end")
		return
	}
	s.closing = true
	m.mu.Unlock()

	m.owner.Log().Debug().Str("Method", "EndCurrentSession").Str("SessionID", s.id).Bool("StopCasting", stopCasting).Msg("session ending")
	m.dispatch(func(l SessionManagerListener) { l.OnSessionEnding(s) })

	go func() {
		s.cancelWatch()
		s.connected.Store(false)
		err := s.client.Close(stopCasting)
		s.media.shutdown()

		m.mu.Lock()
		if m.current == s {
			m.current = nil
		}
		if m.pending == s {
			m.pending = nil
		}
		m.phase = phaseIdle
		m.mu.Unlock()

		m.owner.refreshState()
		m.dispatch(func(l SessionManagerListener) { l.OnSessionEnded(s, StatusCodeFromError(err)) })
	}()
}

// suspend is called by the watchdog after repeated status failures. It
// tries one reconnect and reports whether the session is still alive.
func (m *sessionManager) suspend(s *chromecastSession) bool {
	m.mu.Lock()
	if m.current != s || s.closing {
		m.mu.Unlock()
		return false
	}
	m.phase = phaseSuspended
	s.connected.Store(false)
	m.mu.Unlock()

	m.owner.Log().Debug().Str("Method", "suspend").Str("SessionID", s.id).Msg("session suspended")
	m.owner.refreshState()
	m.dispatch(func(l SessionManagerListener) { l.OnSessionSuspended(s, SuspendReasonNetworkLost) })
	m.dispatch(func(l SessionManagerListener) { l.OnSessionResuming(s, s.id) })

	err := s.client.Connect()

	m.mu.Lock()
	if m.current != s || s.closing {
		m.mu.Unlock()
		return false
	}

	if err == nil {
		m.phase = phaseConnected
		s.connected.Store(true)
		m.mu.Unlock()

		m.owner.Log().Debug().Str("Method", "suspend").Str("SessionID", s.id).Msg("session resumed")
		m.owner.refreshState()
		m.dispatch(func(l SessionManagerListener) { l.OnSessionResumed(s, true) })
		return true
	}

	s.closing = true
	m.current = nil
	m.phase = phaseIdle
	m.mu.Unlock()

	code := StatusCodeFromError(err)
	m.owner.Log().Error().Str("Method", "suspend").Str("SessionID", s.id).Err(err).Msg("session resume failed")
	_ = s.client.Close(false)
	go s.media.shutdown()

	m.owner.refreshState()
	m.dispatch(func(l SessionManagerListener) { l.OnSessionResumeFailed(s, code) })
	m.dispatch(func(l SessionManagerListener) { l.OnSessionEnded(s, code) })
	return false
}

type chromecastSession struct {
	manager    *sessionManager
	id         string
	deviceAddr string
	client     ProtocolClient
	media      *chromecastMediaClient
	connected  *atomic.Bool
	closing    bool // guarded by manager.mu

	watchCtx    context.Context
	cancelWatch context.CancelFunc
}

var _ Session = (*chromecastSession)(nil)

func newChromecastSession(m *sessionManager, deviceAddr string, client ProtocolClient) *chromecastSession {
	ctx, cancel := context.WithCancel(context.Background())

	s := &chromecastSession{
		manager:     m,
		id:          uuid.NewString(),
		deviceAddr:  deviceAddr,
		client:      client,
		connected:   atomic.NewBool(false),
		watchCtx:    ctx,
		cancelWatch: cancel,
	}
	s.media = &chromecastMediaClient{
		session: s,
		worker:  dispatch.NewQueue(),
	}

	return s
}

func (s *chromecastSession) SessionID() string  { return s.id }
func (s *chromecastSession) DeviceAddr() string { return s.deviceAddr }
func (s *chromecastSession) IsConnected() bool  { return s.connected.Load() }

func (s *chromecastSession) RemoteMediaClient() RemoteMediaClient {
	return s.media
}

// watch polls media status until the session ends, suspending the session
// after too many consecutive failures.
func (s *chromecastSession) watch() {
	ticker := time.NewTicker(s.manager.statusInterval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-s.watchCtx.Done():
			return
		case <-ticker.C:
		}

		status, err := s.client.GetStatus()
		if err != nil {
			failures++
			if failures < s.manager.suspendAfter {
				continue
			}
			failures = 0
			if !s.manager.suspend(s) {
				return
			}
			continue
		}

		failures = 0
		s.media.update(status)
	}
}

type chromecastMediaClient struct {
	session   *chromecastSession
	worker    *dispatch.Queue
	listeners listenerSet[MediaClientListener]

	mu     sync.Mutex
	status *MediaStatus
}

var _ RemoteMediaClient = (*chromecastMediaClient)(nil)

// submit runs fn on the client's request worker, in submission order.
func (c *chromecastMediaClient) submit(method string, fn func() error) PendingResult {
	res, resolve := newPending()

	accepted := c.worker.Post(func() {
		if !c.session.IsConnected() {
			resolve(ErrSessionNotConnected)
			return
		}

		err := fn()
		if err != nil {
			c.session.manager.owner.Log().Error().Str("Method", method).Str("SessionID", c.session.id).Err(err).Msg("media request failed")
		}
		resolve(err)
	})
	if !accepted {
		resolve(ErrSessionNotConnected)
	}

	return res
}

func (c *chromecastMediaClient) Load(info MediaInfo, opts LoadOptions) PendingResult {
	req := toLoadRequest(info, opts)
	return c.submit("Load", func() error {
		return c.session.client.Load(req)
	})
}

func (c *chromecastMediaClient) Play() PendingResult {
	return c.submit("Play", c.session.client.Play)
}

func (c *chromecastMediaClient) Pause() PendingResult {
	return c.submit("Pause", c.session.client.Pause)
}

func (c *chromecastMediaClient) Stop() PendingResult {
	return c.submit("Stop", c.session.client.Stop)
}

func (c *chromecastMediaClient) Seek(positionMs int64) PendingResult {
	return c.submit("Seek", func() error {
		return c.session.client.Seek(int(positionMs / 1000))
	})
}

func (c *chromecastMediaClient) SetStreamVolume(level float64) PendingResult {
	return c.submit("SetStreamVolume", func() error {
		return c.session.client.SetVolume(float32(level))
	})
}

func (c *chromecastMediaClient) SetStreamMute(muted bool) PendingResult {
	return c.submit("SetStreamMute", func() error {
		return c.session.client.SetMuted(muted)
	})
}

func (c *chromecastMediaClient) MediaStatus() *MediaStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == nil {
		return nil
	}
	st := *c.status
	return &st
}

func (c *chromecastMediaClient) AddListener(l MediaClientListener) {
	if l != nil {
		c.listeners.add(l)
	}
}

func (c *chromecastMediaClient) RemoveListener(l MediaClientListener) {
	if l != nil {
		c.listeners.remove(l)
	}
}

// update stores a polled status and notifies listeners when anything
// but the playback position changed.
func (c *chromecastMediaClient) update(cs *castprotocol.CastStatus) {
	st := fromCastStatus(cs)

	c.mu.Lock()
	changed := c.status == nil || !sameStatus(*c.status, st)
	c.status = &st
	c.mu.Unlock()

	if !changed {
		return
	}

	c.session.manager.owner.executor.Post(func() {
		for _, l := range c.listeners.snapshot() {
			l.OnStatusUpdated(st)
		}
	})
}

func (c *chromecastMediaClient) shutdown() {
	c.worker.Close()
}

func sameStatus(a, b MediaStatus) bool {
	a.StreamPosition = 0
	b.StreamPosition = 0
	return a == b
}

func fromCastStatus(cs *castprotocol.CastStatus) MediaStatus {
	if cs == nil {
		return MediaStatus{PlayerState: PlayerStateIdle}
	}

	return MediaStatus{
		PlayerState:    cs.PlayerState,
		IdleReason:     cs.IdleReason,
		StreamPosition: float64(cs.CurrentTime),
		StreamDuration: float64(cs.Duration),
		Volume:         float64(cs.Volume),
		Muted:          cs.Muted,
	}
}

func toLoadRequest(info MediaInfo, opts LoadOptions) castprotocol.LoadRequest {
	item := castprotocol.MediaItem{
		ContentId:   info.ContentID,
		ContentType: info.ContentType,
		StreamType:  string(info.StreamType),
		Duration:    float64(info.StreamDuration) / 1000,
		CustomData:  info.CustomData,
	}

	if info.Metadata != nil {
		meta := &castprotocol.MediaMeta{
			MetadataType: info.Metadata.MediaType,
			Title:        info.Metadata.Title,
			Subtitle:     info.Metadata.Subtitle,
		}
		for _, img := range info.Metadata.Images {
			meta.Images = append(meta.Images, castprotocol.MediaImage{URL: img.URL})
		}
		item.Metadata = meta
	}

	return castprotocol.LoadRequest{
		Media:     item,
		StartTime: float64(opts.PlayPosition) / 1000,
		Autoplay:  opts.Autoplay,
	}
}
