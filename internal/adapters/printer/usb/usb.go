// Package usb writes ESC/POS streams straight to a USB printer-class
// device through libusb.
package usb

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/gousb"

	"posprint/internal/pkg/errors"
)

type Config struct {
	// VendorID and ProductID select the device; zero picks the first
	// printer-class device found.
	VendorID  uint16
	ProductID uint16
}

type Sink struct {
	vid, pid gousb.ID

	mu    sync.Mutex
	usb   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	out   *gousb.OutEndpoint
}

func New(c Config) *Sink {
	return &Sink{
		vid: gousb.ID(c.VendorID),
		pid: gousb.ID(c.ProductID),
		usb: gousb.NewContext(),
	}
}

func (s *Sink) Name() string {
	if s.vid == 0 && s.pid == 0 {
		return "usb:auto"
	}
	return fmt.Sprintf("usb:%s:%s", s.vid, s.pid)
}

func (s *Sink) DefaultDeviceName(ctx context.Context) (string, bool) {
	names, err := s.ListDevices(ctx)
	if err != nil || len(names) == 0 {
		return "", false
	}
	if s.vid == 0 && s.pid == 0 {
		return names[0], true
	}
	want := deviceName(s.vid, s.pid)
	for _, n := range names {
		if n == want {
			return n, true
		}
	}
	return "", false
}

// ListDevices reports every attached printer-class device without
// opening any of them.
func (s *Sink) ListDevices(context.Context) ([]string, error) {
	var names []string
	_, err := s.usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if IsPrinter(desc) {
			names = append(names, deviceName(desc.Vendor, desc.Product))
		}
		return false
	})
	if err != nil {
		return names, errors.WrapWithCode(err, errors.CodeUnavailable, "usb.ListDevices", "enumerating usb devices")
	}
	return names, nil
}

// Transmit opens the device on first use. A failed write releases the
// device so the next job reopens it.
func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out == nil {
		if err := s.open(); err != nil {
			return errors.Transmission(err, "usb.Transmit", s.Name())
		}
	}
	for off := 0; off < len(data); {
		n, err := s.out.WriteContext(ctx, data[off:])
		if err != nil {
			s.closeLocked()
			return errors.Transmission(err, "usb.Transmit", s.Name())
		}
		off += n
	}
	return nil
}

// BacklogDepth is always zero: the device has no queue the host can see.
func (s *Sink) BacklogDepth(context.Context) int { return 0 }

// PurgeBacklog resets the device handle. It does not wait for a write in
// progress; that write fails on its own context.
func (s *Sink) PurgeBacklog(context.Context) error {
	if !s.mu.TryLock() {
		return nil
	}
	defer s.mu.Unlock()
	if s.dev != nil {
		if err := s.dev.Reset(); err != nil {
			s.closeLocked()
			return errors.WrapWithCode(err, errors.CodeUnavailable, "usb.PurgeBacklog", "resetting device")
		}
	}
	s.closeLocked()
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	if s.usb != nil {
		err := s.usb.Close()
		s.usb = nil
		return err
	}
	return nil
}

func (s *Sink) open() error {
	dev, err := s.find()
	if err != nil {
		return err
	}
	if runtime.GOOS == "linux" {
		_ = dev.SetAutoDetach(true)
	}

	num, err := dev.ActiveConfigNum()
	if err != nil {
		dev.Close()
		return fmt.Errorf("active config: %w", err)
	}
	cfg, err := dev.Config(num)
	if err != nil {
		dev.Close()
		return fmt.Errorf("config %d: %w", num, err)
	}

	ifNum, alt, ok := printerInterface(cfg.Desc)
	if !ok {
		cfg.Close()
		dev.Close()
		return fmt.Errorf("no printer interface on %s", dev)
	}
	iface, err := cfg.Interface(ifNum, alt)
	if err != nil {
		cfg.Close()
		dev.Close()
		return fmt.Errorf("claim interface %d: %w", ifNum, err)
	}

	epNum, ok := bulkOut(iface.Setting)
	if !ok {
		iface.Close()
		cfg.Close()
		dev.Close()
		return fmt.Errorf("no bulk out endpoint on interface %d", ifNum)
	}
	out, err := iface.OutEndpoint(epNum)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return fmt.Errorf("out endpoint %d: %w", epNum, err)
	}

	s.dev, s.cfg, s.iface, s.out = dev, cfg, iface, out
	return nil
}

func (s *Sink) find() (*gousb.Device, error) {
	if s.vid != 0 || s.pid != 0 {
		dev, err := s.usb.OpenDeviceWithVIDPID(s.vid, s.pid)
		if err != nil {
			return nil, err
		}
		if dev == nil {
			return nil, fmt.Errorf("device %s not found", deviceName(s.vid, s.pid))
		}
		return dev, nil
	}

	devs, err := s.usb.OpenDevices(IsPrinter)
	if len(devs) == 0 {
		if err == nil {
			err = fmt.Errorf("no usb printer attached")
		}
		return nil, err
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	return devs[0], nil
}

func (s *Sink) closeLocked() {
	if s.iface != nil {
		s.iface.Close()
	}
	if s.cfg != nil {
		_ = s.cfg.Close()
	}
	if s.dev != nil {
		_ = s.dev.Close()
	}
	s.dev, s.cfg, s.iface, s.out = nil, nil, nil, nil
}

// IsPrinter reports whether any interface of desc is printer class.
func IsPrinter(desc *gousb.DeviceDesc) bool {
	if desc == nil {
		return false
	}
	for _, cfg := range desc.Configs {
		if _, _, ok := printerInterface(cfg); ok {
			return true
		}
	}
	return false
}

func printerInterface(cfg gousb.ConfigDesc) (num, alt int, ok bool) {
	for _, iface := range cfg.Interfaces {
		for _, setting := range iface.AltSettings {
			if setting.Class == gousb.ClassPrinter {
				return iface.Number, setting.Alternate, true
			}
		}
	}
	return 0, 0, false
}

func bulkOut(setting gousb.InterfaceSetting) (int, bool) {
	best := -1
	for _, ep := range setting.Endpoints {
		if ep.Direction != gousb.EndpointDirectionOut || ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if best < 0 || ep.Number < best {
			best = ep.Number
		}
	}
	return best, best >= 0
}

func deviceName(vid, pid gousb.ID) string {
	return fmt.Sprintf("usb:%s:%s", vid, pid)
}
