// Package printer builds the printer sink selected by configuration.
package printer

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"posprint/internal/adapters/printer/relay"
	"posprint/internal/adapters/printer/spooler"
	"posprint/internal/adapters/printer/tcp"
	"posprint/internal/adapters/printer/usb"
	"posprint/internal/config"
	"posprint/internal/pkg/errors"
	"posprint/internal/ports"
	"posprint/internal/worker/queue"
)

// NewSink returns the sink for cfg.Printer.Backend. rdb is only used by
// the relay backend and may be nil otherwise.
func NewSink(cfg *config.Config, rdb redis.Cmdable) (ports.PrinterSink, error) {
	p := cfg.Printer
	switch p.Backend {
	case "", "spooler":
		return spooler.New(spooler.Config{Printer: p.Name}), nil

	case "usb":
		return usb.New(usb.Config{
			VendorID:  uint16(p.USBVendorID),
			ProductID: uint16(p.USBProductID),
		}), nil

	case "tcp":
		if p.TCPAddress == "" {
			return nil, errors.ValidationField("printer.tcp_address", "tcp backend requires PRINTER_TCP_ADDRESS")
		}
		return tcp.New(tcp.Config{
			Address:      p.TCPAddress,
			DialTimeout:  p.TCPDialTimeout,
			WriteTimeout: p.TCPWriteTimeout,
		}), nil

	case "relay":
		if rdb == nil {
			return nil, errors.ValidationField("redis.addr", "relay backend requires a redis connection")
		}
		return relay.New(queue.NewRedisQueue(rdb, cfg.Relay.Queue)), nil

	default:
		return nil, errors.ValidationField("printer.backend", fmt.Sprintf("unknown printer backend: %s", p.Backend))
	}
}
