// Package tcp sends raw ESC/POS streams to network printers on their raw
// port (usually 9100).
package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"posprint/internal/pkg/errors"
)

const (
	defaultDialTimeout  = 3 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type Config struct {
	Address      string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Sink keeps one connection open and redials once when a write on a
// stale connection fails.
type Sink struct {
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration

	// writeMu serializes transmissions; connMu guards conn only, so a
	// purge can close a connection whose write is stuck.
	writeMu sync.Mutex
	connMu  sync.Mutex
	conn    net.Conn
}

func New(cfg Config) *Sink {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Sink{addr: cfg.Address, dialTimeout: cfg.DialTimeout, writeTimeout: cfg.WriteTimeout}
}

func (s *Sink) Name() string { return "tcp:" + s.addr }

func (s *Sink) DefaultDeviceName(context.Context) (string, bool) {
	return s.addr, s.addr != ""
}

func (s *Sink) ListDevices(context.Context) ([]string, error) {
	return []string{s.addr}, nil
}

func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.connMu.Lock()
	reused := s.conn != nil
	s.connMu.Unlock()

	if err := s.write(ctx, data); err != nil {
		if !reused || ctx.Err() != nil {
			return errors.Transmission(err, "tcp.Transmit", s.addr)
		}
		// The printer may have dropped an idle connection.
		if err := s.write(ctx, data); err != nil {
			return errors.Transmission(err, "tcp.Transmit", s.addr)
		}
	}
	return nil
}

func (s *Sink) write(ctx context.Context, data []byte) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	// Unblock the write when ctx is canceled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetWriteDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(data); err != nil {
		s.drop(conn)
		return err
	}
	return nil
}

func (s *Sink) connect(ctx context.Context) (net.Conn, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		return conn, nil
	}

	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return conn, nil
}

// drop closes conn if it is still the current connection.
func (s *Sink) drop(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.Close()
}

// BacklogDepth is always zero: a raw socket has no host-side queue.
func (s *Sink) BacklogDepth(context.Context) int { return 0 }

// PurgeBacklog drops the connection, discarding anything still buffered
// in the socket and failing a write in progress.
func (s *Sink) PurgeBacklog(context.Context) error {
	s.closeConn()
	return nil
}

func (s *Sink) Close() error {
	s.closeConn()
	return nil
}

func (s *Sink) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
