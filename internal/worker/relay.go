package worker

import (
	"context"
	"time"

	"posprint/internal/pkg/logger"
)

// RunRelay pops encoded tickets and writes them to the local printer until
// ctx is canceled. Payloads are already complete ESC/POS streams, so they
// are forwarded byte for byte.
func RunRelay(ctx context.Context, d RelayDeps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("relay")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 30 * time.Second
	}
	retry := d.RetryDelay
	if retry <= 0 {
		retry = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("relay context canceled, stopping")
			return ctx.Err()
		default:
		}

		payload, err := d.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("relay stopping due to context cancellation")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			if !pause(ctx, retry) {
				return ctx.Err()
			}
			continue
		}
		if len(payload) == 0 {
			continue
		}

		start := time.Now()
		if err := d.Sink.Transmit(ctx, payload); err != nil {
			// The ticket is lost; the API side already reported success.
			log.Error("relay transmit failed",
				"error", err.Error(),
				"bytes", len(payload),
				"sink", d.Sink.Name(),
			)
			if !pause(ctx, retry) {
				return ctx.Err()
			}
			continue
		}
		log.Info("ticket relayed",
			"bytes", len(payload),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
