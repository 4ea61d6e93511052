package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/banksync/banksync/internal/logger"
)

// DefaultGrace is how long shutdown may take after a signal before the process is killed.
const DefaultGrace = 10 * time.Second

type closer struct {
	name string
	fn   func() error
}

// Teardown releases resources in reverse registration order, exactly once.
type Teardown struct {
	mu      sync.Mutex
	closers []closer
	closed  bool
	err     error
}

// Register adds fn to run at teardown under name.
func (t *Teardown) Register(name string, fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closers = append(t.closers, closer{name: name, fn: fn})
}

// Close runs every registered function, last registered first. A failing
// function does not stop the others; all failures are returned together.
// Later calls return the first result.
func (t *Teardown) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.err
	}
	t.closed = true

	var errs *multierror.Error
	for i := len(t.closers) - 1; i >= 0; i-- {
		c := t.closers[i]
		if err := c.fn(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	t.err = errs.ErrorOrNil()
	return t.err
}

// Runner runs a unit of work under signal-driven cancellation.
type Runner struct {
	Grace   time.Duration
	Signals []os.Signal
	Exit    func(code int)
}

// Run calls fn with a context canceled on SIGINT or SIGTERM and a Teardown
// that is closed after fn returns. If a signal arrives and fn plus teardown
// take longer than Grace, Exit(1) is called.
func Run(ctx context.Context, grace time.Duration, fn func(context.Context, *Teardown) error) error {
	return Runner{Grace: grace}.Run(ctx, fn)
}

// Run is like the package-level Run with the runner's settings.
func (r Runner) Run(ctx context.Context, fn func(context.Context, *Teardown) error) error {
	if r.Grace <= 0 {
		r.Grace = DefaultGrace
	}
	if len(r.Signals) == 0 {
		r.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if r.Exit == nil {
		r.Exit = os.Exit
	}

	sigCtx, stop := signal.NotifyContext(ctx, r.Signals...)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-sigCtx.Done():
		}
		if ctx.Err() != nil {
			// parent canceled, not a signal
			return
		}
		log := logger.FromContext(ctx)
		log.Warn().Dur("grace", r.Grace).Msg("shutdown requested, waiting for in-flight work")
		timer := time.NewTimer(r.Grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			log.Error().Msg("shutdown grace period exceeded, exiting")
			r.Exit(1)
		}
	}()

	td := &Teardown{}
	err := fn(sigCtx, td)
	if cerr := td.Close(); cerr != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(cerr).Msg("teardown failed")
		if err == nil {
			err = cerr
		}
	}
	return err
}
