package worker

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/adapters/printer/fake"
	"posprint/internal/models"
	"posprint/internal/pkg/errors"
	"posprint/internal/pkg/logger"
)

type encodeFunc func(ctx context.Context, job models.Job) ([]byte, error)

func (f encodeFunc) Encode(ctx context.Context, job models.Job) ([]byte, error) { return f(ctx, job) }

// echo encodes a job as its ID so tests can check ordering on the wire.
var echo = encodeFunc(func(_ context.Context, job models.Job) ([]byte, error) {
	return []byte(job.JobID()), nil
})

type memRecorder struct {
	mu       sync.Mutex
	outcomes []models.JobOutcome
}

func (r *memRecorder) Record(_ context.Context, o models.JobOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *memRecorder) all() []models.JobOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.JobOutcome(nil), r.outcomes...)
}

func testConfig() Config {
	return Config{
		Capacity:         2,
		SubmitTimeout:    20 * time.Millisecond,
		PurgeSettle:      time.Millisecond,
		BacklogHighWater: 5,
		StallPause:       time.Millisecond,
		FailureThreshold: 3,
		RecoveryPause:    time.Millisecond,
		JobInterval:      time.Millisecond,
	}
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "text", Output: &bytes.Buffer{}})
}

func roomy(c *Config) { c.Capacity = 16 }

func newTestScheduler(t *testing.T, sink *fake.Sink, enc Encoder, rec Recorder, opts ...func(*Config)) *Scheduler {
	t.Helper()
	if enc == nil {
		enc = echo
	}
	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := NewScheduler(SchedulerDeps{
		Sink:     sink,
		Encoder:  enc,
		Recorder: rec,
		Log:      quietLogger(),
		Config:   cfg,
	})
	t.Cleanup(func() {
		sink.Release()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func textJob(id string) models.TextJob {
	return models.TextJob{ID: id, Body: "ticket " + id + "\n"}
}

func TestSchedulerPrintsInSubmissionOrder(t *testing.T) {
	sink := fake.New("test")
	rec := &memRecorder{}
	s := newTestScheduler(t, sink, nil, rec, roomy)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		require.NoError(t, s.Submit(ctx, textJob(id)))
	}

	require.Eventually(t, func() bool { return len(sink.Transmissions()) == len(ids) },
		time.Second, 5*time.Millisecond)

	for i, data := range sink.Transmissions() {
		assert.Equal(t, ids[i], string(data))
	}

	require.Eventually(t, func() bool { return len(rec.all()) == len(ids) }, time.Second, 5*time.Millisecond)
	for _, o := range rec.all() {
		assert.True(t, o.Success)
		assert.Equal(t, models.KindText, o.Kind)
		assert.Equal(t, 1, o.Bytes)
	}

	st := s.Stats()
	assert.EqualValues(t, len(ids), st.Accepted)
	assert.EqualValues(t, len(ids), st.Processed)
	assert.Zero(t, st.Purges)
	assert.True(t, st.Running)
}

func TestSchedulerOverflowPurgesThenDrops(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil)
	ctx := context.Background()

	// First job occupies the worker, the next ones fill the queue.
	require.NoError(t, s.Submit(ctx, textJob("inflight")))
	<-entered
	for i := 0; i < testConfig().Capacity; i++ {
		require.NoError(t, s.Submit(ctx, textJob("queued")))
	}

	err := s.Submit(ctx, textJob("overflow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueOverflow)
	assert.Equal(t, http.StatusTooManyRequests, errors.GetHTTPStatus(err))

	assert.Equal(t, 1, sink.Purges())
	st := s.Stats()
	assert.EqualValues(t, 1, st.Purges)
	assert.EqualValues(t, 1, st.Dropped)
	assert.Equal(t, testConfig().Capacity, st.Pending)
}

func TestSchedulerOverflowRetrySucceedsAfterDrain(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, textJob("inflight")))
	<-entered
	for i := 0; i < testConfig().Capacity; i++ {
		require.NoError(t, s.Submit(ctx, textJob("queued")))
	}

	// Unblock the printer while the submission is waiting, freeing a slot.
	go func() {
		time.Sleep(5 * time.Millisecond)
		sink.Release()
	}()

	require.NoError(t, s.Submit(ctx, textJob("late")))
	require.Eventually(t, func() bool { return len(sink.Transmissions()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Stats().Dropped)
}

func TestSchedulerFailureThresholdPurgesOnce(t *testing.T) {
	sink := fake.New("test")
	sink.FailNext(3, nil)
	rec := &memRecorder{}
	s := newTestScheduler(t, sink, nil, rec, roomy)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, s.Submit(ctx, textJob(id)))
	}

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Failed == 3 && st.Purges == 1 && st.ConsecutiveFailures == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.Purges())

	require.NoError(t, s.Submit(ctx, textJob("ok")))
	require.Eventually(t, func() bool { return s.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, s.Stats().Purges)

	require.Eventually(t, func() bool { return len(rec.all()) == 4 }, time.Second, 5*time.Millisecond)
	outcomes := rec.all()
	for _, o := range outcomes[:3] {
		assert.False(t, o.Success)
		assert.NotEmpty(t, o.Error)
		assert.Zero(t, o.Bytes)
	}
	assert.True(t, outcomes[3].Success)
}

func TestSchedulerSuccessResetsFailures(t *testing.T) {
	sink := fake.New("test")
	sink.FailNext(2, nil)
	s := newTestScheduler(t, sink, nil, nil, roomy)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "ok", "f3"} {
		require.NoError(t, s.Submit(ctx, textJob(id)))
	}
	require.Eventually(t, func() bool { return s.Stats().Processed == 2 }, time.Second, 5*time.Millisecond)

	st := s.Stats()
	assert.EqualValues(t, 2, st.Failed)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Zero(t, st.Purges)
}

func TestSchedulerPurgesStalledBacklog(t *testing.T) {
	sink := fake.New("test")
	sink.SetBacklog(9)
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Submit(context.Background(), textJob("x")))
	require.Eventually(t, func() bool { return len(sink.Transmissions()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, sink.Purges())
	assert.Zero(t, sink.BacklogDepth(context.Background()))
}

func TestSchedulerBacklogAtHighWaterIsLeftAlone(t *testing.T) {
	sink := fake.New("test")
	sink.SetBacklog(testConfig().BacklogHighWater)
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Submit(context.Background(), textJob("x")))
	require.Eventually(t, func() bool { return len(sink.Transmissions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sink.Purges())
}

func TestSchedulerSurvivesPanics(t *testing.T) {
	sink := fake.New("test")
	sink.PanicNext()
	s := newTestScheduler(t, sink, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, textJob("boom")))
	require.NoError(t, s.Submit(ctx, textJob("after")))

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Failed == 1 && st.Processed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("after"), sink.Transmissions()[0])
}

func TestSchedulerEncoderErrorSkipsTransmit(t *testing.T) {
	sink := fake.New("test")
	enc := encodeFunc(func(_ context.Context, job models.Job) ([]byte, error) {
		if job.JobID() == "bad" {
			return nil, errors.Conversion(errors.New(errors.CodeValidation, "not an image"), "test")
		}
		return []byte(job.JobID()), nil
	})
	s := newTestScheduler(t, sink, enc, nil)
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, textJob("bad")))
	require.NoError(t, s.Submit(ctx, textJob("good")))

	require.Eventually(t, func() bool { return s.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, s.Stats().Failed)
	assert.Equal(t, 1, sink.Attempts())
}

func TestSchedulerEmptyEncodingFails(t *testing.T) {
	sink := fake.New("test")
	enc := encodeFunc(func(context.Context, models.Job) ([]byte, error) { return nil, nil })
	s := newTestScheduler(t, sink, enc, nil)

	require.NoError(t, s.Submit(context.Background(), models.NewCutJob()))
	require.Eventually(t, func() bool { return s.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sink.Attempts())
}

func TestClearBacklogDoesNotWaitForTransmission(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Submit(context.Background(), textJob("stuck")))
	<-entered

	done := make(chan error, 1)
	go func() { done <- s.ClearBacklog(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ClearBacklog blocked behind a wedged transmission")
	}
	assert.Equal(t, 1, sink.Purges())
}

func TestClearBacklogReportsDeviceError(t *testing.T) {
	sink := fake.New("test")
	sink.FailPurge(errors.New(errors.CodeUnavailable, "spooler down"))
	s := newTestScheduler(t, sink, nil, nil)

	err := s.ClearBacklog(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestSubmitAfterShutdown(t *testing.T) {
	sink := fake.New("test")
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))

	err := s.Submit(context.Background(), models.NewDrawerJob())
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	assert.False(t, s.Stats().Running)
}

func TestEnqueueAfterStopNeverAccepts(t *testing.T) {
	sink := fake.New("test")
	s := newTestScheduler(t, sink, nil, nil, roomy)
	require.NoError(t, s.Shutdown(context.Background()))

	// enqueue is what Submit reaches when Shutdown lands after its closed
	// check; the queue has room, so only the stop check can refuse.
	for i := 0; i < 500; i++ {
		ok, err := s.enqueue(context.Background(), models.NewCutJob())
		require.False(t, ok)
		require.ErrorIs(t, err, ErrSchedulerClosed)
	}
	assert.Zero(t, s.Stats().Pending)
}

func TestShutdownDiscardsQueuedJobs(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil, roomy)

	require.NoError(t, s.Submit(context.Background(), textJob("in-flight")))
	<-entered
	require.NoError(t, s.Submit(context.Background(), textJob("waiting-1")))
	require.NoError(t, s.Submit(context.Background(), textJob("waiting-2")))

	go func() {
		time.Sleep(10 * time.Millisecond)
		sink.Release()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Zero(t, s.Stats().Pending)
	require.Len(t, sink.Transmissions(), 1)
	assert.Equal(t, []byte("in-flight"), sink.Transmissions()[0])
}

func TestSubmitHonorsContext(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Submit(context.Background(), textJob("inflight")))
	<-entered
	for i := 0; i < testConfig().Capacity; i++ {
		require.NoError(t, s.Submit(context.Background(), textJob("queued")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Submit(ctx, textJob("late"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))
}

func TestShutdownTimeoutAbortsTransmission(t *testing.T) {
	sink := fake.New("test")
	entered := sink.Block()
	s := newTestScheduler(t, sink, nil, nil)

	require.NoError(t, s.Submit(context.Background(), textJob("stuck")))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))

	// The canceled write lets the worker exit.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, s.Shutdown(waitCtx))
	assert.Empty(t, sink.Transmissions())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	d := DefaultConfig()
	assert.Equal(t, d.Capacity, cfg.Capacity)
	assert.Equal(t, d.SubmitTimeout, cfg.SubmitTimeout)
	assert.Equal(t, d.FailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, d.BacklogHighWater, cfg.BacklogHighWater)
	assert.Equal(t, 200*time.Millisecond, d.JobInterval)
	assert.Equal(t, 50, d.Capacity)
}
