package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/adapters/printer/fake"
	"posprint/internal/pkg/errors"
)

// chanQueue hands out scripted payloads, then blocks until timeout.
type chanQueue struct {
	mu    sync.Mutex
	items [][]byte
	errs  []error
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	q.mu.Lock()
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		q.mu.Unlock()
		return nil, err
	}
	if len(q.items) > 0 {
		p := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return p, nil
	}
	q.mu.Unlock()

	select {
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runRelay(t *testing.T, q *chanQueue, sink *fake.Sink) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunRelay(ctx, RelayDeps{
			Queue:      q,
			Sink:       sink,
			Log:        quietLogger(),
			PopTimeout: 10 * time.Millisecond,
			RetryDelay: time.Millisecond,
		})
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRunRelayForwardsPayloads(t *testing.T) {
	q := &chanQueue{
		errs:  []error{errors.New(errors.CodeUnavailable, "redis down")},
		items: [][]byte{{0x1B, 0x40}, {}, {0x1D, 0x56, 0x00}},
	}
	sink := fake.New("local")
	cancel, done := runRelay(t, q, sink)

	require.Eventually(t, func() bool { return len(sink.Transmissions()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]byte{{0x1B, 0x40}, {0x1D, 0x56, 0x00}}, sink.Transmissions())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRunRelayContinuesAfterPrinterError(t *testing.T) {
	q := &chanQueue{items: [][]byte{[]byte("lost"), []byte("kept")}}
	sink := fake.New("local")
	sink.FailNext(1, nil)
	runRelay(t, q, sink)

	require.Eventually(t, func() bool { return len(sink.Transmissions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("kept"), sink.Transmissions()[0])
	assert.Equal(t, 2, sink.Attempts())
}
