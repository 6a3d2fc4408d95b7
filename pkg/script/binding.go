package script

import (
	"log/slog"
	"sync"

	"github.com/jibbrjabbr/jj/pkg/server"
)

// Binding runs a program on every connection of a host.
type Binding struct {
	program *Program
	host    *server.Host
	logger  *slog.Logger

	mu       sync.Mutex
	runtimes map[string]*runtime
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger script output and failures go to.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Attach runs program on each connection of host as it connects.
func Attach(host *server.Host, program *Program, opts ...Option) *Binding {
	b := &Binding{
		program:  program,
		host:     host,
		logger:   host.Logger(),
		runtimes: make(map[string]*runtime),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "script", "script", program.Name())

	host.OnConnect(b.connect)
	host.OnDisconnect(b.disconnect)
	return b
}

// Runtimes returns the number of live connection runtimes.
func (b *Binding) Runtimes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runtimes)
}

// Program returns the program new connections run.
func (b *Binding) Program() *Program {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.program
}

// Swap makes program the one new connections run. Live connections keep
// the runtime they started with.
func (b *Binding) Swap(program *Program) {
	b.mu.Lock()
	b.program = program
	b.mu.Unlock()
}

func (b *Binding) connect(ctx *server.Context) error {
	conn := ctx.Connection()
	prog := b.Program()
	r := newRuntime(prog.Name(), b.logger.With("connection_id", conn.ID()))

	b.mu.Lock()
	b.runtimes[conn.ID()] = r
	b.mu.Unlock()

	return r.run(ctx, func() error {
		if _, err := r.vm.RunProgram(prog.prog); err != nil {
			return err
		}
		return r.callAll(r.onConnect)
	})
}

func (b *Binding) disconnect(ctx *server.Context) error {
	id := ctx.Connection().ID()
	b.mu.Lock()
	r := b.runtimes[id]
	delete(b.runtimes, id)
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.run(ctx, func() error {
		return r.callAll(r.onDisconnect)
	})
}
