package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"posprint/internal/pkg/errors"
)

// DotsPerMM returns the print density for a printer resolution.
func DotsPerMM(dpi int) float64 {
	switch dpi {
	case 203:
		return 8
	case 300:
		return 12
	case 600:
		return 24
	}
	if dpi <= 0 {
		return 8
	}
	return float64(dpi) / 25.4
}

// TargetDots converts a physical size into a dot count rounded up to a
// multiple of 8 so the raster has no padding.
func TargetDots(mm, dotsPerMM float64) int {
	n := int(math.Ceil(mm * dotsPerMM))
	if n <= 0 {
		return 0
	}
	return (n + 7) / 8 * 8
}

// MaxDecodePixels caps the declared size of images passed to Decode. A
// 4096x4096 RGBA buffer is 64 MiB.
const MaxDecodePixels = 4096 * 4096

// Decode decodes PNG, JPEG, GIF, BMP or WebP data. Images whose header
// declares more than MaxDecodePixels are rejected before any pixel buffer
// is allocated.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Conversion(fmt.Errorf("empty image data"), "raster.Decode")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Conversion(err, "raster.Decode")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Conversion(fmt.Errorf("zero-sized image"), "raster.Decode")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return nil, errors.Conversion(
			fmt.Errorf("image of %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxDecodePixels),
			"raster.Decode",
		).WithField("width", cfg.Width).WithField("height", cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Conversion(err, "raster.Decode")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Conversion(fmt.Errorf("zero-sized image"), "raster.Decode")
	}
	return img, nil
}

// Resize scales img to w x h with nearest-neighbour sampling, which keeps
// QR modules as solid blocks.
func Resize(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// QR decodes an encoded QR code image and rasterizes it as a square of
// mm millimetres. On failure it returns an empty raster and the error so
// the caller can print the ticket without the code.
func QR(data []byte, mm, dotsPerMM float64) (*Image, error) {
	img, err := Decode(data)
	if err != nil {
		return &Image{}, err
	}
	side := TargetDots(mm, dotsPerMM)
	if side == 0 {
		return &Image{}, errors.Conversion(fmt.Errorf("invalid target size %.1fmm", mm), "raster.QR")
	}
	return FromImage(Resize(img, side, side)), nil
}

// FitWidth scales a document page down to maxDots wide, keeping the aspect
// ratio. Narrower pages are returned unchanged.
func FitWidth(img image.Image, maxDots int) image.Image {
	if img == nil || maxDots <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDots {
		return img
	}
	h := int(math.Round(float64(b.Dy()) * float64(maxDots) / float64(b.Dx())))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxDots, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
