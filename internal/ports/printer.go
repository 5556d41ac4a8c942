package ports

import "context"

// PrinterSink moves finished byte streams to a physical printer.
// Implementations report failures as errors and never panic.
type PrinterSink interface {
	// Name identifies the backend ("cups", "winspool", "usb", ...).
	Name() string

	// DefaultDeviceName returns the device jobs are sent to, if any.
	DefaultDeviceName(ctx context.Context) (string, bool)

	// Transmit sends data as one raw job.
	Transmit(ctx context.Context, data []byte) error

	// BacklogDepth returns the number of jobs waiting in the device or
	// spooler queue, or -1 when it cannot be determined.
	BacklogDepth(ctx context.Context) int

	// PurgeBacklog discards every pending job in the device queue.
	PurgeBacklog(ctx context.Context) error
}

// DeviceLister is implemented by sinks that can enumerate printers.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]string, error)
}

// Closer is implemented by sinks holding OS handles.
type Closer interface {
	Close() error
}
