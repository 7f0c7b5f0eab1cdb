package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go2tv.app/castbridge/bridge"
	"go2tv.app/castbridge/castframework"
	"go2tv.app/castbridge/devices"
	"go2tv.app/castbridge/interactive"
	"go2tv.app/castbridge/internal/config"
	"go2tv.app/castbridge/utils"
	"golang.org/x/sync/errgroup"
)

const endSessionTimeout = 5 * time.Second

func run(cliCtx *cli.Context) error {
	cfg := config.NewConfig()
	if dir := cliCtx.String("config"); dir != "" {
		cfg = config.NewConfigAt(dir)
	}

	// Global flags are loaded at the root of the koanf tree.
	cliCtx.Command.Name = "global"
	if err := cfg.Load(koanf.New("."), cliCtx); err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	headless := cliCtx.Bool("headless")

	logOutput, closeLog, err := openLog(cfg.Values, headless)
	if err != nil {
		return err
	}
	defer closeLog()

	scanner := devices.NewScanner()
	scanner.LogOutput = logOutput

	if cliCtx.Bool("list") {
		scanner.Warmup(cfg.Values.DiscoveryTimeout)
		return listFlagFunction(cliCtx.App.Writer, scanner.Devices())
	}

	media, err := checkMediaFlag(cliCtx)
	if err != nil {
		return err
	}

	device := cfg.Values.Device
	if device == "" {
		scanner.Warmup(cfg.Values.DiscoveryTimeout)
		devs := scanner.Devices()
		if len(devs) == 0 {
			return errors.New("no Chromecast devices found")
		}
		device = devs[0].Addr
	}

	contentType := ""
	if !cliCtx.IsSet("content-type") {
		probeCtx, cancel := context.WithTimeout(cliCtx.Context, cfg.Values.DiscoveryTimeout)
		contentType, err = utils.ProbeContentType(probeCtx, media)
		cancel()
		if err != nil {
			contentType = bridge.DefaultContentType
		}
	}

	desc, err := descriptorFromFlags(cliCtx, media, contentType)
	if err != nil {
		return err
	}

	var castCtx *castframework.ChromecastContext
	pkg := bridge.NewPackage(func(exec castframework.Executor) (castframework.Context, error) {
		c, err := castframework.NewChromecastContext(castframework.Options{
			Scanner:        scanner,
			StaticDevice:   cfg.Values.Device,
			Executor:       exec,
			StatusInterval: cfg.Values.StatusInterval,
			LogOutput:      logOutput,
		})
		if err != nil {
			return nil, err
		}
		castCtx = c
		return c, nil
	}, logOutput)
	defer pkg.Close()

	if !pkg.CastingSupported() {
		return errors.New("casting is not supported on this host")
	}

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := &launcher{desc: desc, headless: headless, cancel: cancel}

	var screen *interactive.CastScreen
	var presenter bridge.Presenter
	if headless {
		l.next = newEventPrinter(cliCtx.App.Writer)
	} else {
		screen, err = interactive.InitCastScreen(desc.Title, cancel)
		if err != nil {
			return err
		}
		if err := screen.Init(); err != nil {
			return err
		}
		defer screen.Fini()
		screen.LogOutput = logOutput
		l.next = screen
		presenter = screen
	}

	module := pkg.CreateModule(l, presenter)
	l.setModule(module)
	defer module.Close()

	if screen != nil {
		screen.SetController(module)
	}
	// Listeners must be registered before the session starts.
	module.OnHostResume()

	if err := waitCall(ctx, module.StartSession(device)); err != nil {
		return errors.Wrapf(err, "starting session with %s", device)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		castCtx.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if screen != nil {
			return screen.Run(gctx)
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	// Headless runs stop the receiver. The interactive screen already ended
	// the session for ESC and q, so this only disconnects on a signal.
	endCtx, endCancel := context.WithTimeout(context.Background(), endSessionTimeout)
	defer endCancel()
	if _, endErr := module.EndSession(headless).Wait(endCtx); endErr == nil {
		waitSessionEnd(endCtx, castCtx.SessionManager())
	}
	module.OnHostDestroy()

	return err
}

// waitSessionEnd returns once sm has no current session or ctx is done.
func waitSessionEnd(ctx context.Context, sm castframework.SessionManager) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for sm.CurrentSession() != nil {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func waitCall[T any](ctx context.Context, c *bridge.Call[T]) error {
	_, err := c.Wait(ctx)
	return err
}

func openLog(v config.Values, headless bool) (io.Writer, func(), error) {
	level := zerolog.InfoLevel
	if v.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	switch {
	case v.LogFile != "":
		f, err := os.OpenFile(v.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening log file")
		}
		return f, func() { _ = f.Close() }, nil
	case headless && v.Debug:
		return os.Stderr, func() {}, nil
	default:
		return io.Discard, func() {}, nil
	}
}

// launcher casts the media once the first session starts and, when
// headless, exits when the session or the playback ends.
type launcher struct {
	next     bridge.Emitter
	desc     bridge.MediaDescriptor
	headless bool
	cancel   context.CancelFunc

	mu       sync.Mutex
	module   *bridge.Module
	launched bool
}

func (l *launcher) setModule(m *bridge.Module) {
	l.mu.Lock()
	l.module = m
	l.mu.Unlock()
}

func (l *launcher) Emit(event string, params bridge.Params) {
	l.next.Emit(event, params)

	switch event {
	case bridge.SessionStarted:
		l.mu.Lock()
		m := l.module
		first := !l.launched
		l.launched = true
		l.mu.Unlock()

		if first && m != nil {
			m.CastMedia(l.desc)
		}
	case bridge.SessionStartFailed, bridge.SessionEnded, bridge.MediaPlaybackEnded:
		if l.headless {
			l.cancel()
		}
	}
}

// eventPrinter writes each module event as a JSON line.
type eventPrinter struct {
	logger zerolog.Logger
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{logger: zerolog.New(w).With().Timestamp().Logger()}
}

func (p *eventPrinter) Emit(event string, params bridge.Params) {
	e := p.logger.Log().Str("Event", event)
	if params != nil {
		e = e.Interface("Params", map[string]any(params))
	}
	e.Send()
}
