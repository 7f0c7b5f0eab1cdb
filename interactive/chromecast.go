// Package interactive is a terminal host for the cast bridge. It shows
// session and playback events and maps keys to module calls.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"go2tv.app/castbridge/bridge"
	"go2tv.app/castbridge/castframework"
	"golang.org/x/time/rate"
)

const (
	seekStep     = 10
	seekThrottle = 250 * time.Millisecond
	volumeStep   = 0.1
)

// Controller is the part of bridge.Module the screen drives.
type Controller interface {
	Play() *bridge.Call[struct{}]
	Pause() *bridge.Call[struct{}]
	Stop() *bridge.Call[struct{}]
	Seek(positionSeconds int) *bridge.Call[struct{}]
	EndSession(stopCasting bool) *bridge.Call[bool]
	LaunchExpandedControls() *bridge.Call[struct{}]
	SetVolume(level float64) *bridge.Call[struct{}]
	SetMuted(muted bool) *bridge.Call[struct{}]
	OnHostResume()
	OnHostPause()
	OnHostDestroy()
}

// CastScreen is the interactive terminal host. It implements
// bridge.Emitter and bridge.Presenter.
type CastScreen struct {
	Current       tcell.Screen
	ctrl          Controller
	exitCTXfunc   context.CancelFunc
	seekLimiter   *rate.Limiter
	volumeLimiter *rate.Limiter
	finiOnce      sync.Once

	initOnce sync.Once
	initErr  error

	mu          sync.RWMutex
	ready       bool
	mediaTitle  string
	lastAction  string
	castState   castframework.CastState
	playerState string
	position    float64
	duration    float64
	volume      float64
	muted       bool
	expanded    bool

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

var (
	_ bridge.Emitter   = (*CastScreen)(nil)
	_ bridge.Presenter = (*CastScreen)(nil)
)

// InitCastScreen creates a screen on the terminal. ctxCancel is called
// when the user exits.
func InitCastScreen(mediaTitle string, ctxCancel context.CancelFunc) (*CastScreen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("cast interactive: %w", err)
	}

	return NewCastScreen(s, mediaTitle, ctxCancel), nil
}

// NewCastScreen wraps an existing tcell screen.
func NewCastScreen(s tcell.Screen, mediaTitle string, ctxCancel context.CancelFunc) *CastScreen {
	if ctxCancel == nil {
		ctxCancel = func() {}
	}

	return &CastScreen{
		Current:       s,
		exitCTXfunc:   ctxCancel,
		seekLimiter:   rate.NewLimiter(rate.Every(seekThrottle), 1),
		volumeLimiter: rate.NewLimiter(rate.Every(seekThrottle), 1),
		mediaTitle:    mediaTitle,
		lastAction:    "Waiting for device...",
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (p *CastScreen) Log() *zerolog.Logger {
	if p.LogOutput != nil {
		p.initLogOnce.Do(func() {
			p.Logger = zerolog.New(p.LogOutput).With().Timestamp().Logger()
		})
	}
	return &p.Logger
}

// SetController sets the module the screen drives.
func (p *CastScreen) SetController(ctrl Controller) {
	p.mu.Lock()
	p.ctrl = ctrl
	p.mu.Unlock()
}

func (p *CastScreen) controller() Controller {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ctrl
}

func (p *CastScreen) emitStr(x, y int, style tcell.Style, str string) {
	s := p.Current
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
}

func (p *CastScreen) emitCentered(y int, style tcell.Style, str string) {
	w, _ := p.Current.Size()
	p.emitStr(w/2-runewidth.StringWidth(str)/2, y, style, str)
}

// Emit updates the screen for a module event.
func (p *CastScreen) Emit(event string, params bridge.Params) {
	p.Log().Debug().Str("Method", "Emit").Str("Event", event).Msg("event")

	p.mu.Lock()
	switch event {
	case bridge.SessionStarting:
		p.lastAction = "Connecting..."
	case bridge.SessionStarted, bridge.SessionResumed:
		p.lastAction = "Connected"
	case bridge.SessionStartFailed:
		p.lastAction = fmt.Sprintf("Connection failed (code %v)", params["error"])
	case bridge.SessionSuspended:
		p.lastAction = "Connection lost"
	case bridge.SessionResuming:
		p.lastAction = "Reconnecting..."
	case bridge.SessionEnding:
		p.lastAction = "Disconnecting..."
	case bridge.SessionEnded:
		p.lastAction = "Disconnected"
		p.expanded = false
	case bridge.StateChanged:
		if state, ok := params["state"].(int); ok {
			p.castState = castframework.CastState(state)
		}
	case bridge.MediaStatusUpdated:
		if st, ok := params["mediaStatus"].(bridge.Params); ok {
			p.applyStatus(st)
		}
	case bridge.MediaPlaybackEnded:
		p.lastAction = "Stopped"
	}
	p.mu.Unlock()

	p.EmitMsg()
}

// applyStatus must be called with p.mu held.
func (p *CastScreen) applyStatus(st bridge.Params) {
	if v, ok := st["playerState"].(string); ok {
		p.playerState = v
	}
	if v, ok := st["streamPosition"].(float64); ok {
		p.position = v
	}
	if v, ok := st["streamDuration"].(float64); ok && v > 0 {
		p.duration = v
	}
	if v, ok := st["volume"].(float64); ok {
		p.volume = v
	}
	if v, ok := st["muted"].(bool); ok {
		p.muted = v
	}

	switch p.playerState {
	case castframework.PlayerStatePlaying:
		p.lastAction = "Playing"
	case castframework.PlayerStatePaused:
		p.lastAction = "Paused"
	case castframework.PlayerStateBuffering:
		p.lastAction = "Buffering..."
	case castframework.PlayerStateIdle:
		if p.lastAction == "Playing" || p.lastAction == "Paused" {
			p.lastAction = "Stopped"
		}
	}
}

// ShowExpandedControls switches to the expanded controls view.
func (p *CastScreen) ShowExpandedControls() error {
	p.mu.Lock()
	p.expanded = true
	p.mu.Unlock()

	p.EmitMsg()
	return nil
}

// EmitMsg redraws the screen.
func (p *CastScreen) EmitMsg() {
	p.mu.RLock()
	var (
		mediaTitle = p.mediaTitle
		lastAction = p.lastAction
		castState  = p.castState
		position   = p.position
		duration   = p.duration
		volume     = p.volume
		muted      = p.muted
		expanded   = p.expanded
		ready      = p.ready
	)
	p.mu.RUnlock()

	if !ready {
		return
	}

	s := p.Current
	_, h := s.Size()
	boldStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Bold(true)
	blinkStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Blink(true)

	s.Clear()

	p.emitStr(1, 1, tcell.StyleDefault, "Press ESC to stop and exit, q to exit.")
	if castState != 0 {
		p.emitStr(1, 2, tcell.StyleDefault, "Cast state: "+castState.String())
	}

	p.emitCentered(h/2-2, tcell.StyleDefault, "Title: "+mediaTitle)
	if strings.HasSuffix(lastAction, "...") {
		p.emitCentered(h/2, blinkStyle, lastAction)
	} else {
		p.emitCentered(h/2, boldStyle, lastAction)
	}

	if muted {
		p.emitCentered(h/2+2, blinkStyle, "MUTED")
	}

	if expanded {
		p.emitCentered(h/2+4, tcell.StyleDefault, progressLine(position, duration))
		p.emitCentered(h/2+5, tcell.StyleDefault, fmt.Sprintf("Volume: %d%%", int(math.Round(volume*100))))
		p.emitCentered(h/2+7, tcell.StyleDefault, `"Left" "Right" (Seek -10s/+10s)`)
		p.emitCentered(h/2+8, tcell.StyleDefault, `"Up" "Down" (Volume)`)
		p.emitCentered(h/2+9, tcell.StyleDefault, `"s" (Stop)`)
		p.emitCentered(h/2+10, tcell.StyleDefault, `"e" (Hide controls)`)
	} else {
		p.emitCentered(h/2+4, tcell.StyleDefault, `"p" (Play/Pause)`)
		p.emitCentered(h/2+5, tcell.StyleDefault, `"m" (Mute/Unmute)`)
		p.emitCentered(h/2+6, tcell.StyleDefault, `"e" (Expanded controls)`)
	}

	s.Show()
}

func progressLine(position, duration float64) string {
	if duration <= 0 {
		return formatClock(position)
	}
	return formatClock(position) + " / " + formatClock(duration)
}

func formatClock(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// playPauseActionFromState returns the action the play/pause key triggers
// for a player state.
func playPauseActionFromState(state string) string {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case castframework.PlayerStatePlaying, castframework.PlayerStateBuffering:
		return "Pause"
	default:
		return "Play"
	}
}

// Init initializes the terminal once. Events received before Init update
// the state without drawing.
func (p *CastScreen) Init() error {
	p.initOnce.Do(func() {
		s := p.Current
		if err := s.Init(); err != nil {
			p.initErr = fmt.Errorf("cast interactive: %w", err)
			return
		}

		defStyle := tcell.StyleDefault.
			Background(tcell.ColorBlack).
			Foreground(tcell.ColorWhite)
		s.SetStyle(defStyle)
		s.EnableFocus()

		p.mu.Lock()
		p.ready = true
		p.mu.Unlock()
	})
	return p.initErr
}

// Run initializes the terminal and handles events until the user exits or
// ctx is canceled.
func (p *CastScreen) Run(ctx context.Context) error {
	if err := p.Init(); err != nil {
		return err
	}
	s := p.Current

	if ctrl := p.controller(); ctrl != nil {
		ctrl.OnHostResume()
	}
	p.EmitMsg()

	go func() {
		<-ctx.Done()
		p.Fini()
	}()

	for {
		ev := s.PollEvent()
		if ev == nil {
			return nil
		}
		if !p.handleEvent(ev) {
			return nil
		}
	}
}

// handleEvent returns false when the screen should exit.
func (p *CastScreen) handleEvent(ev tcell.Event) bool {
	ctrl := p.controller()

	switch ev := ev.(type) {
	case *tcell.EventResize:
		p.Current.Sync()
		p.EmitMsg()
	case *tcell.EventFocus:
		if ctrl == nil {
			return true
		}
		if ev.Focused {
			ctrl.OnHostResume()
		} else {
			ctrl.OnHostPause()
		}
	case *tcell.EventKey:
		return p.HandleKeyEvent(ev)
	}

	return true
}

// HandleKeyEvent maps a key press to a module call. It returns false when
// the key exits the screen.
func (p *CastScreen) HandleKeyEvent(ev *tcell.EventKey) bool {
	ctrl := p.controller()
	if ctrl == nil {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			p.Fini()
			return false
		}
		return true
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		ctrl.EndSession(true)
		p.Fini()
		return false
	case tcell.KeyLeft, tcell.KeyRight:
		p.seekBy(ctrl, ev.Key() == tcell.KeyRight)
		return true
	case tcell.KeyUp, tcell.KeyDown:
		p.volumeBy(ctrl, ev.Key() == tcell.KeyUp)
		return true
	}

	switch ev.Rune() {
	case 'q':
		ctrl.EndSession(false)
		p.Fini()
		return false
	case 'p':
		p.mu.RLock()
		state := p.playerState
		p.mu.RUnlock()

		if playPauseActionFromState(state) == "Pause" {
			p.report("Pause", ctrl.Pause())
		} else {
			p.report("Play", ctrl.Play())
		}
	case 's':
		p.report("Stop", ctrl.Stop())
	case 'm':
		p.mu.Lock()
		muted := !p.muted
		p.muted = muted
		p.mu.Unlock()

		p.report("SetMuted", ctrl.SetMuted(muted))
		p.EmitMsg()
	case 'e':
		p.mu.Lock()
		expanded := p.expanded
		p.expanded = false
		p.mu.Unlock()

		if expanded {
			p.EmitMsg()
			return true
		}
		p.report("LaunchExpandedControls", ctrl.LaunchExpandedControls())
	}

	return true
}

func (p *CastScreen) seekBy(ctrl Controller, forward bool) {
	if !p.seekLimiter.Allow() {
		return
	}

	p.mu.Lock()
	target := p.position - seekStep
	if forward {
		target = p.position + seekStep
	}
	if p.duration > 0 && target > p.duration {
		target = p.duration
	}
	if target < 0 {
		target = 0
	}
	p.position = target
	p.mu.Unlock()

	p.report("Seek", ctrl.Seek(int(target)))
	p.EmitMsg()
}

func (p *CastScreen) volumeBy(ctrl Controller, up bool) {
	if !p.volumeLimiter.Allow() {
		return
	}

	p.mu.Lock()
	target := p.volume - volumeStep
	if up {
		target = p.volume + volumeStep
	}
	target = math.Round(math.Min(1, math.Max(0, target))*100) / 100
	p.volume = target
	p.mu.Unlock()

	p.report("SetVolume", ctrl.SetVolume(target))
	p.EmitMsg()
}

// report logs the outcome of a call once it completes.
func (p *CastScreen) report(method string, c *bridge.Call[struct{}]) {
	go func() {
		<-c.Done()
		if err := c.Err(); err != nil && !errors.Is(err, bridge.ErrModuleClosed) {
			p.Log().Error().Str("Method", method).Err(err).Msg("call failed")
		}
	}()
}

// Fini closes the screen and exits.
func (p *CastScreen) Fini() {
	p.finiOnce.Do(func() {
		if ctrl := p.controller(); ctrl != nil {
			ctrl.OnHostDestroy()
		}
		p.Current.Fini()
		p.exitCTXfunc()
	})
}
