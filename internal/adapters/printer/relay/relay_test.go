package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/pkg/errors"
)

type memQueue struct {
	mu    sync.Mutex
	items [][]byte
	err   error
}

func (q *memQueue) Name() string { return "mem" }

func (q *memQueue) Push(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, payload)
	return nil
}

func (q *memQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	return int64(len(q.items)), nil
}

func (q *memQueue) Purge(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	n := int64(len(q.items))
	q.items = nil
	return n, nil
}

func TestRelaySink(t *testing.T) {
	q := &memQueue{}
	s := New(q)
	ctx := context.Background()

	assert.Equal(t, "relay:mem", s.Name())
	name, ok := s.DefaultDeviceName(ctx)
	assert.True(t, ok)
	assert.Equal(t, "relay:mem", name)

	require.NoError(t, s.Transmit(ctx, []byte{0x1B, 0x40}))
	require.NoError(t, s.Transmit(ctx, []byte{0x1D, 0x56, 0x00}))
	assert.Equal(t, 2, s.BacklogDepth(ctx))

	require.NoError(t, s.PurgeBacklog(ctx))
	assert.Zero(t, s.BacklogDepth(ctx))
}

func TestRelaySinkQueueDown(t *testing.T) {
	q := &memQueue{err: errors.New(errors.CodeUnavailable, "connection refused")}
	s := New(q)
	ctx := context.Background()

	err := s.Transmit(ctx, []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsTransmission(err))

	assert.Equal(t, -1, s.BacklogDepth(ctx))
	assert.Error(t, s.PurgeBacklog(ctx))
}
