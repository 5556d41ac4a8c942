// Package renderer rasterizes PDF documents into page images by shelling
// out to poppler's pdftoppm.
package renderer

import (
	"bytes"
	"context"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"posprint/internal/pkg/errors"
	"posprint/internal/raster"
)

const (
	defaultBinary  = "pdftoppm"
	defaultDPI     = 180
	defaultTimeout = 30 * time.Second
	outputRoot     = "page"
)

var pdfMagic = []byte("%PDF-")

// Renderer turns a PDF into one image per page, in page order.
type Renderer interface {
	Render(ctx context.Context, pdf []byte) ([]image.Image, error)
}

type Config struct {
	// BinaryPath may be absolute or a name looked up in PATH.
	BinaryPath string
	DPI        int
	Timeout    time.Duration
	TempDir    string
}

type PDFRenderer struct {
	bin     string
	dpi     int
	timeout time.Duration
	tempDir string
}

// New resolves the pdftoppm binary. It fails with an unavailable error
// when poppler is not installed.
func New(cfg Config) (*PDFRenderer, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultBinary
	}
	if cfg.DPI <= 0 {
		cfg.DPI = defaultDPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	bin, err := resolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "renderer.New",
			"pdftoppm not found: "+cfg.BinaryPath)
	}
	return &PDFRenderer{bin: bin, dpi: cfg.DPI, timeout: cfg.Timeout, tempDir: cfg.TempDir}, nil
}

func resolveBinary(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return exec.LookPath(path)
}

func (r *PDFRenderer) Render(ctx context.Context, pdf []byte) ([]image.Image, error) {
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, errors.ValidationField("file", "not a PDF document")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dir, err := os.MkdirTemp(r.tempDir, "posprint-render-*")
	if err != nil {
		return nil, errors.Wrap(err, "renderer.Render", "creating work dir")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, errors.Wrap(err, "renderer.Render", "writing input")
	}

	args := []string{"-r", strconv.Itoa(r.dpi), "-png", in, filepath.Join(dir, outputRoot)}
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "renderer.Render",
				"pdftoppm did not finish in "+r.timeout.String())
		}
		return nil, errors.Conversion(err, "renderer.Render").
			WithField("stderr", strings.TrimSpace(stderr.String()))
	}

	files, err := pageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Conversion(errors.New(errors.CodeValidation, "document has no pages"), "renderer.Render")
	}

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrap(err, "renderer.Render", "reading page")
		}
		img, err := raster.Decode(data)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// pageFiles lists pdftoppm output sorted by page number. pdftoppm pads
// the number to the width of the page count (page-01.png ... page-12.png).
func pageFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, outputRoot+"-*.png"))
	if err != nil {
		return nil, errors.Wrap(err, "renderer.pageFiles", "listing pages")
	}
	type page struct {
		path string
		n    int
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		n, ok := pageNumber(m)
		if !ok {
			continue
		}
		pages = append(pages, page{m, n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

func pageNumber(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
