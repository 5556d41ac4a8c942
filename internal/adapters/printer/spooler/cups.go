//go:build !windows

package spooler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"posprint/internal/pkg/errors"
)

// runner executes name with args, feeding stdin when non-nil, and returns
// stdout.
type runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

type Sink struct {
	printer string
	run     runner
}

func New(cfg Config) *Sink {
	return &Sink{printer: cfg.Printer, run: execRunner}
}

func (s *Sink) Name() string { return "cups" }

func (s *Sink) DefaultDeviceName(ctx context.Context) (string, bool) {
	name, err := s.device(ctx)
	return name, err == nil
}

// device resolves the configured queue or the CUPS default destination.
func (s *Sink) device(ctx context.Context) (string, error) {
	if s.printer != "" {
		return s.printer, nil
	}
	out, err := s.run(ctx, nil, "lpstat", "-d")
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, "spooler.device", "querying default printer")
	}
	// "system default destination: TM-T20"
	line := strings.TrimSpace(string(out))
	i := strings.LastIndex(line, ":")
	if i < 0 || strings.HasPrefix(line, "no system default") {
		return "", errors.New(errors.CodeUnavailable, "no default printer configured")
	}
	name := strings.TrimSpace(line[i+1:])
	if name == "" {
		return "", errors.New(errors.CodeUnavailable, "no default printer configured")
	}
	return name, nil
}

func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	dev, err := s.device(ctx)
	if err != nil {
		return errors.Transmission(err, "spooler.Transmit", "")
	}
	if _, err := s.run(ctx, data, "lp", "-d", dev, "-o", "raw", "-t", jobTitle); err != nil {
		return errors.Transmission(err, "spooler.Transmit", dev)
	}
	return nil
}

// BacklogDepth counts the queue's pending jobs, one per lpstat line.
func (s *Sink) BacklogDepth(ctx context.Context) int {
	dev, err := s.device(ctx)
	if err != nil {
		return -1
	}
	out, err := s.run(ctx, nil, "lpstat", "-o", dev)
	if err != nil {
		return -1
	}
	return len(lines(out))
}

func (s *Sink) PurgeBacklog(ctx context.Context) error {
	dev, err := s.device(ctx)
	if err != nil {
		return err
	}
	if _, err := s.run(ctx, nil, "cancel", "-a", dev); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "spooler.PurgeBacklog", "canceling jobs on "+dev)
	}
	return nil
}

func (s *Sink) ListDevices(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, nil, "lpstat", "-e")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "spooler.ListDevices", "listing printers")
	}
	return lines(out), nil
}

func lines(out []byte) []string {
	var res []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			res = append(res, l)
		}
	}
	return res
}
