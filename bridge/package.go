package bridge

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go2tv.app/castbridge/castframework"
	"go2tv.app/castbridge/internal/dispatch"
)

// ContextFactory creates the cast context. Framework callbacks must be
// delivered through exec.
type ContextFactory func(exec castframework.Executor) (castframework.Context, error)

// Package initializes the cast context once and builds modules on top of it.
type Package struct {
	castCtx          castframework.Context
	castingSupported bool
	queue            *dispatch.Queue
	Logger           zerolog.Logger
	LogOutput        io.Writer
	initLogOnce      sync.Once
}

// NewPackage calls factory with the package's dispatch queue. Casting is
// reported unsupported when factory fails.
func NewPackage(factory ContextFactory, logOutput io.Writer) *Package {
	p := &Package{
		queue:     dispatch.NewQueue(),
		LogOutput: logOutput,
	}

	castCtx, err := factory(p.queue)
	if err != nil || castCtx == nil {
		p.Log().Error().Str("Method", "NewPackage").Err(err).Msg("cast context unavailable, casting disabled")
		return p
	}

	p.castCtx = castCtx
	p.castingSupported = true
	return p
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (p *Package) Log() *zerolog.Logger {
	if p.LogOutput != nil {
		p.initLogOnce.Do(func() {
			p.Logger = zerolog.New(p.LogOutput).With().Timestamp().Logger()
		})
	}
	return &p.Logger
}

// CastingSupported reports whether the cast context initialized.
func (p *Package) CastingSupported() bool {
	return p.castingSupported
}

// CastContext returns the cast context, or nil when casting is unsupported.
func (p *Package) CastContext() castframework.Context {
	return p.castCtx
}

// CreateModule builds a Module that shares the package's dispatch queue.
func (p *Package) CreateModule(emitter Emitter, presenter Presenter) *Module {
	return NewModule(p.castCtx, p.castingSupported, ModuleOptions{
		Emitter:   emitter,
		Presenter: presenter,
		Queue:     p.queue,
		LogOutput: p.LogOutput,
	})
}

// Close stops the dispatch queue after the work already queued ran.
func (p *Package) Close() {
	p.queue.Close()
}
