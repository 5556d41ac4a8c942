// Package relay is a printer sink that hands encoded tickets to a remote
// relay agent through a shared queue instead of writing to a device.
package relay

import (
	"context"

	"posprint/internal/pkg/errors"
)

// Queue is the subset of queue.RedisQueue the sink needs.
type Queue interface {
	Name() string
	Push(ctx context.Context, payload []byte) error
	Len(ctx context.Context) (int64, error)
	Purge(ctx context.Context) (int64, error)
}

type Sink struct {
	q Queue
}

func New(q Queue) *Sink {
	return &Sink{q: q}
}

func (s *Sink) Name() string { return "relay:" + s.q.Name() }

func (s *Sink) DefaultDeviceName(context.Context) (string, bool) {
	return s.Name(), true
}

func (s *Sink) ListDevices(context.Context) ([]string, error) {
	return []string{s.Name()}, nil
}

func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	if err := s.q.Push(ctx, data); err != nil {
		return errors.Transmission(err, "relay.Transmit", s.Name())
	}
	return nil
}

// BacklogDepth is the number of payloads the agent has not picked up, or
// -1 when the queue cannot be read.
func (s *Sink) BacklogDepth(ctx context.Context) int {
	n, err := s.q.Len(ctx)
	if err != nil {
		return -1
	}
	return int(n)
}

func (s *Sink) PurgeBacklog(ctx context.Context) error {
	if _, err := s.q.Purge(ctx); err != nil {
		return errors.Wrap(err, "relay.PurgeBacklog", "purging relay queue")
	}
	return nil
}
