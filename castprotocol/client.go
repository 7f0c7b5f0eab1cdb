package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

const (
	// DefaultPort is the Chromecast control port.
	DefaultPort = 8009

	loadAttempts      = 5
	transportAttempts = 8
)

// wakeWait is the pause between load attempts. Tests shorten it.
var wakeWait = 4 * time.Second

var (
	// ErrNoTransport is returned when the receiver never reports a transport ID
	// for the launched application.
	ErrNoTransport = errors.New("failed to get transport ID after retries")
	// ErrConnectionClosed is returned when the connection is closed while a
	// load is in progress.
	ErrConnectionClosed = errors.New("connection closed during load")
)

// CastClient wraps go-chromecast Application for simplified API
type CastClient struct {
	app         *application.Application
	conn        cast.Conn // keep reference to connection for custom commands
	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// ParseDeviceAddr accepts "host", "host:port" or "scheme://host:port" and
// returns the host and the control port.
func ParseDeviceAddr(deviceAddr string) (string, int, error) {
	if deviceAddr == "" {
		return "", 0, fmt.Errorf("parse device addr: empty address")
	}

	raw := deviceAddr
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("tcp://" + raw)
		if err != nil {
			return "", 0, fmt.Errorf("parse device addr: %w", err)
		}
	}

	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("parse device addr: no host in %q", deviceAddr)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("parse device addr port: %w", err)
		}
	}

	return host, port, nil
}

// NewCastClient creates a client for the device at deviceAddr. No connection
// is made until Connect is called.
func NewCastClient(deviceAddr string) (*CastClient, error) {
	host, port, err := ParseDeviceAddr(deviceAddr)
	if err != nil {
		return nil, err
	}

	// Create our own connection that we can use for custom commands
	conn := cast.NewConnection()

	// Retry on connection failures, slow TVs need time to wake
	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(5),
	)

	return &CastClient{
		app:  app,
		conn: conn,
		host: host,
		port: port,
	}, nil
}

// Connect establishes connection to the Chromecast device.
func (c *CastClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Msg("connecting")
	if err := c.app.Start(c.host, c.port); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}
	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Msg("connected successfully")
	return nil
}

// IsTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the TV needs to wake from sleep.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Load launches the default media receiver and sends a LOAD for req.
// Timeouts are retried a few times since sleeping TVs answer slowly.
func (c *CastClient) Load(req LoadRequest) error {
	c.Log().Debug().Str("Method", "Load").Str("URL", req.Media.ContentId).Str("ContentType", req.Media.ContentType).
		Float64("StartTime", req.StartTime).Float64("Duration", req.Media.Duration).Bool("Autoplay", req.Autoplay).Msg("loading media")

	if !c.IsConnected() {
		c.Log().Debug().Str("Method", "Load").Msg("connection closed, reconnecting")
		if err := c.Connect(); err != nil {
			return fmt.Errorf("reconnect before load: %w", err)
		}
	}

	var lastErr error
	for attempt := range loadAttempts {
		if !c.IsConnected() {
			c.Log().Debug().Str("Method", "Load").Msg("connection closed during load, aborting")
			return ErrConnectionClosed
		}

		c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Msg("launching default receiver")
		if err := LaunchDefaultReceiver(c.conn); err != nil {
			lastErr = err
			if IsTimeoutError(err) {
				c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Err(err).Msg("timeout, TV may be waking up, retrying...")
				time.Sleep(wakeWait)
				continue
			}
			c.Log().Error().Str("Method", "Load").Err(err).Msg("launch receiver failed")
			return fmt.Errorf("launch receiver: %w", err)
		}

		transportId := c.waitTransport("Load")
		if transportId == "" {
			lastErr = ErrNoTransport
			c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Msg("no transport ID, TV may be waking up, retrying...")
			time.Sleep(wakeWait)
			continue
		}

		if err := SendLoad(c.conn, transportId, req); err != nil {
			lastErr = err
			if IsTimeoutError(err) {
				c.Log().Debug().Str("Method", "Load").Int("Attempt", attempt).Err(err).Msg("timeout, TV may be waking up, retrying...")
				time.Sleep(wakeWait)
				continue
			}
			c.Log().Error().Str("Method", "Load").Err(err).Msg("SendLoad failed")
			return err
		}

		// Refresh app state so the media session ID from the LOAD response
		// is known to Unpause/Pause/Stop.
		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", "Load").Err(err).Msg("app.Update after load failed")
		}

		c.Log().Debug().Str("Method", "Load").Msg("load success")
		return nil
	}

	c.Log().Error().Str("Method", "Load").Err(lastErr).Msg("load failed after retries")
	return lastErr
}

// waitTransport polls the receiver until the launched app reports a transport ID.
func (c *CastClient) waitTransport(method string) string {
	for i := range transportAttempts {
		if !c.IsConnected() {
			return ""
		}

		if err := c.app.Update(); err != nil {
			c.Log().Debug().Str("Method", method).Int("Attempt", i+1).Err(err).Msg("app.Update retry")
			time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
			continue
		}

		app := c.app.App()
		if app != nil && app.TransportId != "" {
			c.Log().Debug().Str("Method", method).Str("TransportId", app.TransportId).Msg("got transport ID")
			return app.TransportId
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}

	return ""
}

// Play resumes playback.
func (c *CastClient) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Play").Msg("resuming playback")
	err := c.app.Unpause()
	if err != nil {
		c.Log().Error().Str("Method", "Play").Err(err).Msg("failed")
	}
	return err
}

// Pause pauses playback.
func (c *CastClient) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Pause").Msg("pausing playback")
	err := c.app.Pause()
	if err != nil {
		c.Log().Error().Str("Method", "Pause").Err(err).Msg("failed")
	}
	return err
}

// Stop stops playback and closes the media session.
func (c *CastClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Stop").Msg("stopping playback")
	err := c.app.Stop()
	if err != nil {
		c.Log().Error().Str("Method", "Stop").Err(err).Msg("failed")
	}
	return err
}

// Seek seeks to position in seconds from start.
func (c *CastClient) Seek(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "Seek").Int("Seconds", seconds).Msg("seeking")
	err := c.app.SeekFromStart(seconds)
	if err != nil {
		c.Log().Error().Str("Method", "Seek").Err(err).Msg("failed")
	}
	return err
}

// SetVolume sets volume (0.0 to 1.0).
func (c *CastClient) SetVolume(level float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "SetVolume").Float32("Level", level).Msg("setting volume")
	err := c.app.SetVolume(level)
	if err != nil {
		c.Log().Error().Str("Method", "SetVolume").Err(err).Msg("failed")
	}
	return err
}

// SetMuted sets mute state.
func (c *CastClient) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log().Debug().Str("Method", "SetMuted").Bool("Muted", muted).Msg("setting mute")
	err := c.app.SetMuted(muted)
	if err != nil {
		c.Log().Error().Str("Method", "SetMuted").Err(err).Msg("failed")
	}
	return err
}

// GetStatus returns current playback status.
// No mutex needed - only reads from underlying library which has its own sync.
func (c *CastClient) GetStatus() (*CastStatus, error) {
	if err := c.app.Update(); err != nil {
		c.Log().Debug().Str("Method", "GetStatus").Err(err).Msg("app.Update failed")
		return nil, err
	}
	_, media, vol := c.app.Status()
	status := &CastStatus{}
	if vol != nil {
		status.Volume = float32(vol.Level)
		status.Muted = vol.Muted
	}
	if media != nil {
		status.PlayerState = media.PlayerState
		status.IdleReason = media.IdleReason
		status.CurrentTime = media.CurrentTime
		if media.Media.Duration > 0 {
			status.Duration = media.Media.Duration
		}
		status.ContentType = media.Media.ContentType
		status.MediaTitle = media.Media.Metadata.Title
	} else {
		status.PlayerState = "IDLE"
	}
	return status, nil
}

// Close disconnects from the Chromecast device.
func (c *CastClient) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopMedia", stopMedia).Msg("closing connection")
	c.connected = false
	err := c.app.Close(stopMedia)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
