package escpos

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"

	"posprint/internal/raster"
)

const (
	DefaultLineSpacing byte = 24
	DefaultFeedLines   byte = 6
	qrTrailingFeed     byte = 2
)

// Config fixes the layout of every ticket an Encoder produces.
type Config struct {
	// LineSpacing in dots (ESC 3 n).
	LineSpacing byte
	// FeedLines is the paper advance before the cut so the last line
	// clears the blade. Zero means DefaultFeedLines.
	FeedLines byte
	// QRCaptionTop and QRCaptionBottom frame an embedded QR code.
	// Empty captions are omitted.
	QRCaptionTop    string
	QRCaptionBottom string
	// Transliterate replaces accents and typographic symbols with ASCII
	// before code page selection.
	Transliterate bool
	// CodePages overrides DefaultCodePages.
	CodePages []*charmap.Charmap
}

func DefaultConfig() Config {
	return Config{
		LineSpacing:     DefaultLineSpacing,
		FeedLines:       DefaultFeedLines,
		QRCaptionTop:    "Scan the QR code",
		QRCaptionBottom: "Thank you for your purchase",
		Transliterate:   true,
	}
}

// Encoder is safe for concurrent use; it holds no mutable state.
type Encoder struct {
	cfg   Config
	codec Codec
}

func New(cfg Config) *Encoder {
	if cfg.LineSpacing == 0 {
		cfg.LineSpacing = DefaultLineSpacing
	}
	if cfg.FeedLines == 0 {
		cfg.FeedLines = DefaultFeedLines
	}
	return &Encoder{
		cfg:   cfg,
		codec: Codec{Transliterate: cfg.Transliterate, CodePages: cfg.CodePages},
	}
}

// EncodeText builds a complete text ticket. A non-empty qr raster is
// printed centered above the body.
func (e *Encoder) EncodeText(body string, cutAfter bool, qr *raster.Image) []byte {
	var buf bytes.Buffer
	buf.Write(cmdInit)
	buf.Write(lineSpacing(e.cfg.LineSpacing))

	if !qr.Empty() {
		buf.Write(align(AlignCenter))
		e.writeCaption(&buf, e.cfg.QRCaptionTop)
		writeRaster(&buf, qr)
		e.writeCaption(&buf, e.cfg.QRCaptionBottom)
		buf.Write(feedLines(qrTrailingFeed))
		buf.Write(align(AlignLeft))
	}

	e.writeText(&buf, NormalizeText(body))

	buf.Write(feedLines(e.cfg.FeedLines))
	if cutAfter {
		buf.Write(cmdCut)
	}
	return buf.Bytes()
}

// EncodeImagePage frames one rasterized document page. Only the last page
// of a document is cut.
func (e *Encoder) EncodeImagePage(img *raster.Image, isLastPage bool) []byte {
	var buf bytes.Buffer
	if !img.Empty() {
		writeRaster(&buf, img)
	}
	buf.Write(feedLines(e.cfg.FeedLines))
	if isLastPage {
		buf.Write(cmdCut)
	}
	return buf.Bytes()
}

// EncodeDrawer returns the cash drawer pulse.
func (e *Encoder) EncodeDrawer() []byte {
	return append([]byte(nil), cmdDrawer...)
}

// EncodeCut returns the paper cut command.
func (e *Encoder) EncodeCut() []byte {
	return append([]byte(nil), cmdCut...)
}

func (e *Encoder) writeCaption(buf *bytes.Buffer, caption string) {
	if caption == "" {
		return
	}
	e.writeText(buf, caption)
	buf.WriteByte(LF)
}

// writeText encodes s and, when the result leaves 7-bit ASCII, selects the
// matching character table first. Pure ASCII is sent as is since every
// table agrees on it.
func (e *Encoder) writeText(buf *bytes.Buffer, s string) {
	b, cm := e.codec.encode(s)
	if n, ok := codePageSelectors[cm]; ok && !isASCII(b) {
		buf.Write(selectCodePage(n))
	}
	buf.Write(b)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// writeRaster emits img as one or more GS v 0 bands.
func writeRaster(buf *bytes.Buffer, img *raster.Image) {
	for from := 0; from < img.Height; from += maxRasterRows {
		to := min(from+maxRasterRows, img.Height)
		buf.Write(rasterHeader(img.WidthBytes, to-from))
		buf.Write(img.Rows(from, to))
	}
}
