// Package processor turns queued jobs into ESC/POS byte streams.
package processor

import (
	"context"

	"posprint/internal/escpos"
	"posprint/internal/models"
	"posprint/internal/pkg/errors"
	"posprint/internal/pkg/logger"
	"posprint/internal/raster"
)

const DefaultQRSizeMM = 35.0

type Deps struct {
	Encoder *escpos.Encoder
	// DPI of the print head, used to size the QR block.
	DPI int
	// QRSizeMM is the printed edge length of the QR block.
	QRSizeMM float64
	// PaperWidthDots caps page width; wider pages are scaled down.
	PaperWidthDots int
	Log            *logger.Logger
}

type Processor struct {
	enc        *escpos.Encoder
	dotsPerMM  float64
	qrSizeMM   float64
	paperWidth int
	log        *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	enc := d.Encoder
	if enc == nil {
		enc = escpos.New(escpos.DefaultConfig())
	}
	size := d.QRSizeMM
	if size <= 0 {
		size = DefaultQRSizeMM
	}
	return &Processor{
		enc:        enc,
		dotsPerMM:  raster.DotsPerMM(d.DPI),
		qrSizeMM:   size,
		paperWidth: d.PaperWidthDots,
		log:        log.WithComponent("processor"),
	}
}

// Encode builds the full byte stream for one job.
func (p *Processor) Encode(ctx context.Context, job models.Job) ([]byte, error) {
	switch j := job.(type) {
	case models.TextJob:
		return p.text(ctx, j), nil
	case models.ImagePageJob:
		return p.page(j)
	case models.DrawerJob:
		return p.enc.EncodeDrawer(), nil
	case models.CutJob:
		return p.enc.EncodeCut(), nil
	default:
		return nil, errors.Internalf("unsupported job type %T", job)
	}
}

// text never fails: a QR image that cannot be decoded is left out and the
// ticket prints without it.
func (p *Processor) text(ctx context.Context, j models.TextJob) []byte {
	var qr *raster.Image
	if len(j.QRImage) > 0 {
		img, err := raster.QR(j.QRImage, p.qrSizeMM, p.dotsPerMM)
		if err != nil {
			p.log.FromContext(ctx).Warn("qr image skipped",
				"error", err.Error(),
				"size", len(j.QRImage),
			)
		}
		qr = img
	}
	return p.enc.EncodeText(j.Body, j.CutAfter, qr)
}

func (p *Processor) page(j models.ImagePageJob) ([]byte, error) {
	if j.Pixels == nil {
		return nil, errors.Conversion(errors.New(errors.CodeValidation, "page has no pixels"), "processor.page")
	}
	img := j.Pixels
	if p.paperWidth > 0 {
		img = raster.FitWidth(img, p.paperWidth)
	}
	return p.enc.EncodeImagePage(raster.FromImage(img), j.IsLastPage), nil
}
