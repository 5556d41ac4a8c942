package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"posprint/internal/models"
	"posprint/internal/pkg/errors"
	"posprint/internal/pkg/logger"
	"posprint/internal/ports"
)

var (
	// ErrQueueOverflow is returned by Submit when the job was dropped
	// after one purge-and-retry.
	ErrQueueOverflow = errors.ResourceExhausted("print queue")
	// ErrSchedulerClosed is returned by Submit after Shutdown.
	ErrSchedulerClosed = errors.Unavailable("print scheduler")
)

// Encoder turns a job into the bytes sent to the printer.
type Encoder interface {
	Encode(ctx context.Context, job models.Job) ([]byte, error)
}

// Recorder receives the outcome of every executed job.
type Recorder interface {
	Record(ctx context.Context, o models.JobOutcome) error
}

// Config holds the queue and recovery tunables. Zero values take the
// defaults from DefaultConfig.
type Config struct {
	Capacity         int
	SubmitTimeout    time.Duration
	PurgeSettle      time.Duration
	BacklogHighWater int
	StallPause       time.Duration
	FailureThreshold int
	RecoveryPause    time.Duration
	JobInterval      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:         50,
		SubmitTimeout:    5 * time.Second,
		PurgeSettle:      2 * time.Second,
		BacklogHighWater: 5,
		StallPause:       2 * time.Second,
		FailureThreshold: 3,
		RecoveryPause:    3 * time.Second,
		JobInterval:      200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.PurgeSettle < 0 {
		c.PurgeSettle = 0
	}
	if c.BacklogHighWater <= 0 {
		c.BacklogHighWater = d.BacklogHighWater
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	return c
}

type SchedulerDeps struct {
	Sink     ports.PrinterSink
	Encoder  Encoder
	Recorder Recorder
	Log      *logger.Logger
	Config   Config
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Pending             int   `json:"pending"`
	Capacity            int   `json:"capacity"`
	Running             bool  `json:"running"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	Accepted            int64 `json:"accepted"`
	Processed           int64 `json:"processed"`
	Failed              int64 `json:"failed"`
	Dropped             int64 `json:"dropped"`
	Purges              int64 `json:"purges"`
}

// Scheduler serializes all printer access through one worker goroutine
// fed by a bounded queue.
type Scheduler struct {
	sink     ports.PrinterSink
	encoder  Encoder
	recorder Recorder
	log      *logger.Logger
	cfg      Config

	queue chan models.Job
	// gate is held for every transmission. Purges do not take it: they
	// must be able to unwedge a device whose write is stuck.
	gate sync.Mutex

	// ctx is canceled when Shutdown gives up waiting, aborting the write
	// in flight.
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closed   atomic.Bool

	failures  atomic.Int32
	accepted  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	purges    atomic.Int64
}

// NewScheduler builds the scheduler and starts its worker.
func NewScheduler(d SchedulerDeps) *Scheduler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	cfg := d.Config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		sink:     d.Sink,
		encoder:  d.Encoder,
		recorder: d.Recorder,
		log:      log.WithComponent("scheduler"),
		cfg:      cfg,
		queue:    make(chan models.Job, cfg.Capacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.run()
	s.log.Info("print scheduler started",
		"capacity", cfg.Capacity,
		"sink", d.Sink.Name(),
	)
	return s
}

// Submit enqueues job, waiting up to the submit timeout. A full queue
// triggers one device purge and a second attempt; if that also times out
// the job is dropped and ErrQueueOverflow returned.
func (s *Scheduler) Submit(ctx context.Context, job models.Job) error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	log := s.log.WithJobID(job.JobID())

	ok, err := s.enqueue(ctx, job)
	if err != nil {
		return err
	}
	if ok {
		s.accepted.Add(1)
		log.Debug("job queued", "kind", job.Kind(), "pending", len(s.queue))
		return nil
	}

	log.Warn("print queue full, purging device backlog",
		"kind", job.Kind(),
		"pending", len(s.queue),
	)
	_ = s.purge(ctx, "queue_full")
	if !s.sleep(ctx, s.cfg.PurgeSettle) {
		if s.closed.Load() {
			return ErrSchedulerClosed
		}
		return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "scheduler.Submit", "submission canceled")
	}

	ok, err = s.enqueue(ctx, job)
	if err != nil {
		return err
	}
	if ok {
		s.accepted.Add(1)
		log.Info("job queued after purge", "kind", job.Kind())
		return nil
	}

	s.dropped.Add(1)
	log.Error("job dropped, print queue still full", "kind", job.Kind())
	return ErrQueueOverflow
}

// enqueue reports false when the queue stayed full for the whole timeout.
func (s *Scheduler) enqueue(ctx context.Context, job models.Job) (bool, error) {
	// With stop closed and room in the queue both cases below are ready
	// and select would pick either.
	select {
	case <-s.stop:
		return false, ErrSchedulerClosed
	default:
	}

	timer := time.NewTimer(s.cfg.SubmitTimeout)
	defer timer.Stop()

	select {
	case s.queue <- job:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-s.stop:
		return false, ErrSchedulerClosed
	case <-ctx.Done():
		return false, errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "scheduler.Submit", "submission canceled")
	}
}

// ClearBacklog purges the device queue on operator request.
func (s *Scheduler) ClearBacklog(ctx context.Context) error {
	return s.purge(ctx, "operator")
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Pending:             len(s.queue),
		Capacity:            cap(s.queue),
		Running:             !s.closed.Load(),
		ConsecutiveFailures: int(s.failures.Load()),
		Accepted:            s.accepted.Load(),
		Processed:           s.processed.Load(),
		Failed:              s.failed.Load(),
		Dropped:             s.dropped.Load(),
		Purges:              s.purges.Load(),
	}
}

// Shutdown stops accepting jobs and waits for the job in flight, if any.
// Jobs still queued are discarded.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
	})

	select {
	case <-s.done:
		s.log.Info("print scheduler stopped", "discarded", s.discardQueued())
		return nil
	case <-ctx.Done():
		s.cancel()
		return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "scheduler.Shutdown", "worker did not stop in time")
	}
}

// discardQueued empties the queue once the worker is gone.
func (s *Scheduler) discardQueued() int {
	n := 0
	for {
		select {
		case job := <-s.queue:
			n++
			s.log.WithJobID(job.JobID()).Warn("queued job discarded at shutdown", "kind", job.Kind())
		default:
			return n
		}
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	defer s.cancel()
	ctx := s.ctx

	for {
		select {
		case <-s.stop:
			return
		case job := <-s.queue:
			select {
			case <-s.stop:
				return
			default:
			}
			if !s.drainStall(ctx) {
				return
			}
			s.execute(ctx, job)
			if !s.sleep(ctx, s.cfg.JobInterval) {
				return
			}
		}
	}
}

// drainStall purges the device when its backlog is over the high-water
// mark. It returns false if the scheduler stopped while pausing.
func (s *Scheduler) drainStall(ctx context.Context) bool {
	depth := s.sink.BacklogDepth(ctx)
	if depth <= s.cfg.BacklogHighWater {
		return true
	}
	s.log.Warn("device backlog over high-water mark, purging",
		"backlog", depth,
		"high_water", s.cfg.BacklogHighWater,
	)
	_ = s.purge(ctx, "backlog_stall")
	return s.sleep(ctx, s.cfg.StallPause)
}

func (s *Scheduler) execute(ctx context.Context, job models.Job) {
	jobCtx := logger.ContextWithJobID(ctx, job.JobID())
	jobLog := s.log.WithJobID(job.JobID())
	start := time.Now()

	n, err := s.transmit(jobCtx, job)

	outcome := models.JobOutcome{
		JobID:     job.JobID(),
		Kind:      job.Kind(),
		Bytes:     n,
		Success:   err == nil,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	}

	if err != nil {
		outcome.Error = err.Error()
		s.failed.Add(1)
		f := s.failures.Add(1)
		jobLog.Error("job failed",
			"kind", job.Kind(),
			"error", err.Error(),
			"consecutive_failures", f,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
		s.record(jobCtx, outcome)

		if int(f) >= s.cfg.FailureThreshold {
			jobLog.Warn("failure threshold reached, purging device backlog", "threshold", s.cfg.FailureThreshold)
			_ = s.purge(ctx, "failure_threshold")
			s.failures.Store(0)
			s.sleep(ctx, s.cfg.RecoveryPause)
		}
		return
	}

	s.processed.Add(1)
	s.failures.Store(0)
	jobLog.Info("job completed",
		"kind", job.Kind(),
		"bytes", n,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	s.record(jobCtx, outcome)
}

// transmit encodes and sends one job under the gate. Panics from the
// encoder or sink are turned into errors so the worker keeps running.
func (s *Scheduler) transmit(ctx context.Context, job models.Job) (n int, err error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.CodeInternal, "panic while printing: %v", rec)
		}
	}()

	data, err := s.encoder.Encode(ctx, job)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, errors.Newf(errors.CodeInternal, "encoder produced no bytes for %s job", job.Kind())
	}
	if err := s.sink.Transmit(ctx, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (s *Scheduler) purge(ctx context.Context, reason string) error {
	s.purges.Add(1)
	if err := s.sink.PurgeBacklog(ctx); err != nil {
		s.log.Error("device purge failed", "reason", reason, "error", err.Error())
		return errors.Wrap(err, "scheduler.purge", fmt.Sprintf("purge (%s) failed", reason))
	}
	s.log.Info("device backlog purged", "reason", reason)
	return nil
}

func (s *Scheduler) record(ctx context.Context, o models.JobOutcome) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, o); err != nil {
		s.log.WithJobID(o.JobID).Warn("journal write failed", "error", err.Error())
	}
}

// sleep waits for d, returning false if the scheduler stopped or ctx
// ended first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
