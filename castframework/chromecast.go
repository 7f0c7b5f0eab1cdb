package castframework

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go2tv.app/castbridge/castprotocol"
	"go2tv.app/castbridge/devices"
)

const (
	defaultStatusInterval = 1 * time.Second
	defaultSuspendAfter   = 3
)

var (
	// ErrCastUnavailable is returned when the host has no network the cast
	// framework could discover devices on.
	ErrCastUnavailable = errors.New("cast context: no multicast capable network interface")
	// ErrSessionActive is returned by StartSession while another session is live.
	ErrSessionActive = errors.New("session manager: a session is already active")
	// ErrSessionNotConnected completes media requests issued while the
	// session is suspended or ended.
	ErrSessionNotConnected = errors.New("remote media client: session not connected")
)

// activeInterfaces is swapped out in tests.
var activeInterfaces = devices.ActiveNetworkInterfaces

// ProtocolClient is the part of castprotocol.CastClient the framework drives.
type ProtocolClient interface {
	Connect() error
	Load(req castprotocol.LoadRequest) error
	Play() error
	Pause() error
	Stop() error
	Seek(seconds int) error
	SetVolume(level float32) error
	SetMuted(muted bool) error
	GetStatus() (*castprotocol.CastStatus, error)
	Close(stopMedia bool) error
}

// ClientFactory creates a ProtocolClient for a device address.
type ClientFactory func(deviceAddr string) (ProtocolClient, error)

// Executor runs framework callbacks. dispatch.Queue satisfies it.
type Executor interface {
	Post(fn func()) bool
}

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) bool {
	fn()
	return true
}

// Options configures a ChromecastContext.
type Options struct {
	// Scanner provides discovered devices. A new one is created when nil.
	Scanner *devices.Scanner
	// StaticDevice is a configured device address. When set, the context
	// works even without discovery.
	StaticDevice string
	// NewClient creates protocol clients. Defaults to castprotocol.NewCastClient.
	NewClient ClientFactory
	// Executor runs every listener callback. Defaults to running inline.
	Executor Executor
	// StatusInterval is how often a live session polls media status.
	StatusInterval time.Duration
	// SuspendAfter is the number of consecutive failed polls that suspend a session.
	SuspendAfter int
	LogOutput    io.Writer
}

// ChromecastContext is a Context backed by mDNS discovery and go-chromecast.
type ChromecastContext struct {
	scanner        *devices.Scanner
	staticDevice   string
	executor       Executor
	manager        *sessionManager
	stateListeners listenerSet[CastStateListener]
	mu             sync.Mutex
	lastState      CastState
	Logger         zerolog.Logger
	LogOutput      io.Writer
	initLogOnce    sync.Once
}

var _ Context = (*ChromecastContext)(nil)

// NewChromecastContext creates the context. It fails with ErrCastUnavailable
// when there is neither a usable network interface nor a static device.
func NewChromecastContext(o Options) (*ChromecastContext, error) {
	if o.StaticDevice == "" && len(activeInterfaces()) == 0 {
		return nil, ErrCastUnavailable
	}

	if o.Scanner == nil {
		o.Scanner = devices.NewScanner()
		o.Scanner.LogOutput = o.LogOutput
	}

	if o.NewClient == nil {
		o.NewClient = castProtocolClients(o.LogOutput)
	}

	if o.Executor == nil {
		o.Executor = inlineExecutor{}
	}

	if o.StatusInterval <= 0 {
		o.StatusInterval = defaultStatusInterval
	}

	if o.SuspendAfter <= 0 {
		o.SuspendAfter = defaultSuspendAfter
	}

	c := &ChromecastContext{
		scanner:      o.Scanner,
		staticDevice: o.StaticDevice,
		executor:     o.Executor,
		LogOutput:    o.LogOutput,
	}

	c.manager = &sessionManager{
		owner:          c,
		newClient:      o.NewClient,
		statusInterval: o.StatusInterval,
		suspendAfter:   o.SuspendAfter,
	}

	c.lastState = c.computeState()
	c.scanner.OnChange(func([]devices.Device) {
		c.refreshState()
	})

	return c, nil
}

func castProtocolClients(logOutput io.Writer) ClientFactory {
	return func(deviceAddr string) (ProtocolClient, error) {
		client, err := castprotocol.NewCastClient(deviceAddr)
		if err != nil {
			return nil, err
		}
		client.LogOutput = logOutput
		return client, nil
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *ChromecastContext) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// Run drives device discovery until ctx is canceled.
func (c *ChromecastContext) Run(ctx context.Context) {
	c.scanner.Run(ctx)
}

// Scanner returns the device scanner feeding this context.
func (c *ChromecastContext) Scanner() *devices.Scanner {
	return c.scanner
}

// CastState returns the current state.
func (c *ChromecastContext) CastState() CastState {
	return c.computeState()
}

// SessionManager returns the session manager.
func (c *ChromecastContext) SessionManager() SessionManager {
	return c.manager
}

// AddCastStateListener registers l. Registering the same listener twice is a no-op.
func (c *ChromecastContext) AddCastStateListener(l CastStateListener) {
	if l == nil {
		return
	}
	if c.stateListeners.add(l) {
		c.Log().Debug().Str("Method", "AddCastStateListener").Int("Listeners", c.stateListeners.len()).Msg("listener added")
	}
}

// RemoveCastStateListener unregisters l.
func (c *ChromecastContext) RemoveCastStateListener(l CastStateListener) {
	if l == nil {
		return
	}
	if c.stateListeners.remove(l) {
		c.Log().Debug().Str("Method", "RemoveCastStateListener").Int("Listeners", c.stateListeners.len()).Msg("listener removed")
	}
}

func (c *ChromecastContext) computeState() CastState {
	switch c.manager.currentPhase() {
	case phaseConnecting, phaseSuspended:
		return Connecting
	case phaseConnected:
		return Connected
	}

	if c.staticDevice != "" || c.scanner.Count() > 0 {
		return NotConnected
	}
	return NoDevicesAvailable
}

// refreshState notifies state listeners when the derived state changed.
func (c *ChromecastContext) refreshState() {
	state := c.computeState()

	c.mu.Lock()
	if state == c.lastState {
		c.mu.Unlock()
		return
	}
	c.lastState = state
	c.mu.Unlock()

	c.Log().Debug().Str("Method", "refreshState").Str("State", state.String()).Msg("cast state changed")
	c.executor.Post(func() {
		for _, l := range c.stateListeners.snapshot() {
			l.OnCastStateChanged(state)
		}
	})
}
