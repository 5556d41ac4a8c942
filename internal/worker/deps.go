package worker

import (
	"context"
	"time"

	"posprint/internal/pkg/logger"
	"posprint/internal/ports"
)

// Popper is the receiving end of the relay queue.
type Popper interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// RelayDeps wires the relay agent: payloads popped from Queue are written
// to the local Sink.
type RelayDeps struct {
	Queue      Popper
	Sink       ports.PrinterSink
	Log        *logger.Logger
	PopTimeout time.Duration
	// RetryDelay is the pause after a queue or printer error.
	RetryDelay time.Duration
}
