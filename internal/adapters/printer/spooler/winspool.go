//go:build windows

package spooler

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"

	"posprint/internal/pkg/errors"
)

var (
	winspool = windows.NewLazySystemDLL("winspool.drv")

	procOpenPrinter       = winspool.NewProc("OpenPrinterW")
	procClosePrinter      = winspool.NewProc("ClosePrinter")
	procStartDocPrinter   = winspool.NewProc("StartDocPrinterW")
	procEndDocPrinter     = winspool.NewProc("EndDocPrinter")
	procStartPagePrinter  = winspool.NewProc("StartPagePrinter")
	procEndPagePrinter    = winspool.NewProc("EndPagePrinter")
	procWritePrinter      = winspool.NewProc("WritePrinter")
	procGetDefaultPrinter = winspool.NewProc("GetDefaultPrinterW")
	procEnumJobs          = winspool.NewProc("EnumJobsW")
	procSetJob            = winspool.NewProc("SetJobW")
	procEnumPrinters      = winspool.NewProc("EnumPrintersW")
)

const (
	jobControlDelete       = 5
	printerEnumLocal       = 0x2
	printerEnumConnections = 0x4
	allJobs                = 0xFFFFFFFF
)

type docInfo1 struct {
	docName    *uint16
	outputFile *uint16
	datatype   *uint16
}

type jobInfo1 struct {
	jobID        uint32
	printerName  *uint16
	machineName  *uint16
	userName     *uint16
	document     *uint16
	datatype     *uint16
	status       *uint16
	statusCode   uint32
	priority     uint32
	position     uint32
	totalPages   uint32
	pagesPrinted uint32
	submitted    windows.Systemtime
}

type printerInfo4 struct {
	printerName *uint16
	serverName  *uint16
	attributes  uint32
}

type Sink struct {
	printer string
}

func New(cfg Config) *Sink {
	return &Sink{printer: cfg.Printer}
}

func (s *Sink) Name() string { return "winspool" }

func (s *Sink) DefaultDeviceName(context.Context) (string, bool) {
	name, err := s.device()
	return name, err == nil
}

func (s *Sink) device() (string, error) {
	if s.printer != "" {
		return s.printer, nil
	}
	var size uint32
	_, _, _ = procGetDefaultPrinter.Call(0, uintptr(unsafe.Pointer(&size)))
	if size == 0 {
		return "", errors.New(errors.CodeUnavailable, "no default printer configured")
	}
	buf := make([]uint16, size)
	r, _, e := procGetDefaultPrinter.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return "", errors.WrapWithCode(e, errors.CodeUnavailable, "spooler.device", "GetDefaultPrinter")
	}
	return windows.UTF16ToString(buf), nil
}

func openPrinter(name string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	r, _, e := procOpenPrinter.Call(uintptr(unsafe.Pointer(p)), uintptr(unsafe.Pointer(&h)), 0)
	if r == 0 {
		return 0, e
	}
	return h, nil
}

func closePrinter(h windows.Handle) {
	_, _, _ = procClosePrinter.Call(uintptr(h))
}

// Transmit submits data as a single RAW document.
func (s *Sink) Transmit(ctx context.Context, data []byte) error {
	dev, err := s.device()
	if err != nil {
		return errors.Transmission(err, "spooler.Transmit", "")
	}
	if err := ctx.Err(); err != nil {
		return errors.Transmission(err, "spooler.Transmit", dev)
	}
	if err := writeRaw(dev, data); err != nil {
		return errors.Transmission(err, "spooler.Transmit", dev)
	}
	return nil
}

func writeRaw(dev string, data []byte) error {
	h, err := openPrinter(dev)
	if err != nil {
		return err
	}
	defer closePrinter(h)

	doc := docInfo1{
		docName:  windows.StringToUTF16Ptr(jobTitle),
		datatype: windows.StringToUTF16Ptr("RAW"),
	}
	if r, _, e := procStartDocPrinter.Call(uintptr(h), 1, uintptr(unsafe.Pointer(&doc))); r == 0 {
		return e
	}
	defer procEndDocPrinter.Call(uintptr(h))

	if r, _, e := procStartPagePrinter.Call(uintptr(h)); r == 0 {
		return e
	}
	defer procEndPagePrinter.Call(uintptr(h))

	if len(data) == 0 {
		return nil
	}
	var written uint32
	r, _, e := procWritePrinter.Call(uintptr(h), uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)), uintptr(unsafe.Pointer(&written)))
	if r == 0 {
		return e
	}
	if int(written) != len(data) {
		return errors.Newf(errors.CodeTransmission, "short write: %d of %d bytes", written, len(data))
	}
	return nil
}

func (s *Sink) jobs(h windows.Handle) ([]jobInfo1, error) {
	var needed, returned uint32
	_, _, _ = procEnumJobs.Call(uintptr(h), 0, allJobs, 1, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return nil, nil
	}
	buf := make([]byte, needed)
	r, _, e := procEnumJobs.Call(uintptr(h), 0, allJobs, 1, uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r == 0 {
		return nil, e
	}
	if returned == 0 {
		return nil, nil
	}
	infos := unsafe.Slice((*jobInfo1)(unsafe.Pointer(&buf[0])), returned)
	return append([]jobInfo1(nil), infos...), nil
}

func (s *Sink) BacklogDepth(context.Context) int {
	dev, err := s.device()
	if err != nil {
		return -1
	}
	h, err := openPrinter(dev)
	if err != nil {
		return -1
	}
	defer closePrinter(h)
	jobs, err := s.jobs(h)
	if err != nil {
		return -1
	}
	return len(jobs)
}

// PurgeBacklog deletes every job in the queue. Individual delete failures
// are skipped; the first one is returned after the sweep.
func (s *Sink) PurgeBacklog(context.Context) error {
	dev, err := s.device()
	if err != nil {
		return err
	}
	h, err := openPrinter(dev)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "spooler.PurgeBacklog", "opening "+dev)
	}
	defer closePrinter(h)

	jobs, err := s.jobs(h)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "spooler.PurgeBacklog", "listing jobs")
	}
	var first error
	for _, j := range jobs {
		r, _, e := procSetJob.Call(uintptr(h), uintptr(j.jobID), 0, 0, jobControlDelete)
		if r == 0 && first == nil {
			first = errors.WrapWithCode(e, errors.CodeUnavailable, "spooler.PurgeBacklog", "deleting job")
		}
	}
	return first
}

func (s *Sink) ListDevices(context.Context) ([]string, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)
	var needed, returned uint32
	_, _, _ = procEnumPrinters.Call(flags, 0, 4, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return nil, nil
	}
	buf := make([]byte, needed)
	r, _, e := procEnumPrinters.Call(flags, 0, 4, uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r == 0 {
		return nil, errors.WrapWithCode(e, errors.CodeUnavailable, "spooler.ListDevices", "EnumPrinters")
	}
	infos := unsafe.Slice((*printerInfo4)(unsafe.Pointer(&buf[0])), returned)
	names := make([]string, 0, len(infos))
	for _, p := range infos {
		names = append(names, windows.UTF16PtrToString(p.printerName))
	}
	return names, nil
}
