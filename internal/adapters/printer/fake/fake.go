// Package fake provides an in-memory printer sink with scriptable
// failures, used by the scheduler and API tests.
package fake

import (
	"context"
	"sync"

	"posprint/internal/pkg/errors"
)

type Sink struct {
	name string

	mu        sync.Mutex
	sent      [][]byte
	attempts  int
	failNext  int
	failErr   error
	backlog   int
	purges    int
	purgeErr  error
	block     chan struct{}
	entered   chan struct{}
	panicNext bool
}

func New(name string) *Sink {
	if name == "" {
		name = "fake"
	}
	return &Sink{name: name}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) DefaultDeviceName(context.Context) (string, bool) {
	return s.name, true
}

func (s *Sink) ListDevices(context.Context) ([]string, error) {
	return []string{s.name}, nil
}

// Transmit records data unless a failure has been scripted. When Block
// is active it waits for Release or ctx.
func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.attempts++
	block, entered := s.block, s.entered
	s.entered = nil
	s.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return errors.Transmission(ctx.Err(), "fake.Transmit", s.name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicNext {
		s.panicNext = false
		panic("fake printer exploded")
	}
	if s.failNext > 0 {
		s.failNext--
		return errors.Transmission(s.failErr, "fake.Transmit", s.name)
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

func (s *Sink) BacklogDepth(context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog
}

// PurgeBacklog empties the simulated device queue. It never waits on a
// blocked Transmit.
func (s *Sink) PurgeBacklog(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purges++
	if s.purgeErr != nil {
		return s.purgeErr
	}
	s.backlog = 0
	return nil
}

// FailNext makes the next n transmissions fail with err.
func (s *Sink) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = errors.New(errors.CodeUnavailable, "printer offline")
	}
	s.failNext = n
	s.failErr = err
}

// PanicNext makes the next transmission panic.
func (s *Sink) PanicNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicNext = true
}

func (s *Sink) SetBacklog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = n
}

func (s *Sink) FailPurge(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeErr = err
}

// Block holds every following Transmit until Release. The returned
// channel is closed once a transmission is waiting.
func (s *Sink) Block() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = make(chan struct{})
	s.entered = make(chan struct{})
	return s.entered
}

func (s *Sink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block != nil {
		close(s.block)
		s.block = nil
	}
}

// Transmissions returns copies of every successful write, in order.
func (s *Sink) Transmissions() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Sink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Sink) Purges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purges
}
