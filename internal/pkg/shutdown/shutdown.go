// Package shutdown stops the print server's components in reverse start
// order when the process is asked to exit.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"posprint/internal/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Hook is one named cleanup step.
type Hook struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager runs registered hooks once, newest first. Hooks run one at a
// time: the HTTP server must stop before the scheduler drains, and the
// scheduler before the device handle closes.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	once sync.Once
	done chan struct{}
	err  error
}

// NewManager creates a manager whose hooks share one timeout budget.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup hook. Later registrations run first.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown hook", "name", name)
}

// RegisterCloser registers c.Close as a hook.
func (m *Manager) RegisterCloser(name string, c io.Closer) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP arrives or ctx ends, then
// runs Shutdown and returns its error.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() != nil {
		m.log.Info("context canceled, shutting down")
	} else {
		m.log.Info("shutdown signal received")
	}
	return m.Shutdown()
}

// Shutdown runs every hook once. A hook that fails or overruns the
// budget does not stop the ones after it; their errors are joined.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("starting graceful shutdown", "hooks", len(hooks), "timeout", m.timeout.String())
		start := time.Now()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := m.run(ctx, h); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			}
		}
		m.err = errors.Join(errs...)

		if ctx.Err() != nil {
			m.log.Warn("shutdown budget exceeded", "duration_ms", time.Since(start).Milliseconds())
		} else {
			m.log.Info("graceful shutdown completed",
				"failed", len(errs),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	})
	<-m.done
	return m.err
}

func (m *Manager) run(ctx context.Context, h Hook) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			m.log.Error("shutdown hook failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return
		}
		m.log.Debug("shutdown hook completed",
			"name", h.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()
	return h.Cleanup(ctx)
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
