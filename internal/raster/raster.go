// Package raster converts pixel buffers into the 1-bit, MSB-first packed
// rasters consumed by thermal receipt printers.
package raster

import (
	"image"
	"image/color"
)

// Threshold is the luminance below which a pixel prints black.
const Threshold = 128

// Image is a monochrome bit-packed raster. Rows are WidthBytes long and
// bit 1 means black. Padding bits on the right of each row are always 0.
type Image struct {
	WidthPx    int
	WidthBytes int
	Height     int
	Data       []byte
}

// Empty reports whether the raster has nothing to print.
func (r *Image) Empty() bool {
	return r == nil || r.WidthBytes == 0 || r.Height == 0
}

// At reports whether the pixel at (x, y) is black.
func (r *Image) At(x, y int) bool {
	if r.Empty() || x < 0 || y < 0 || x >= r.WidthBytes*8 || y >= r.Height {
		return false
	}
	return r.Data[y*r.WidthBytes+x/8]&(0x80>>uint(x%8)) != 0
}

// Rows returns the packed bytes for rows [from, to).
func (r *Image) Rows(from, to int) []byte {
	return r.Data[from*r.WidthBytes : to*r.WidthBytes]
}

// FromImage binarizes img and packs it. A nil or zero-sized image yields
// an empty raster.
func FromImage(img image.Image) *Image {
	if img == nil {
		return &Image{}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return &Image{}
	}

	wb := (w + 7) / 8
	data := make([]byte, wb*h)
	for y := 0; y < h; y++ {
		row := data[y*wb : (y+1)*wb]
		for x := 0; x < w; x++ {
			if luma(img.At(b.Min.X+x, b.Min.Y+y)) < Threshold {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
	}

	return &Image{WidthPx: w, WidthBytes: wb, Height: h, Data: data}
}

// luma returns the ITU-R 601 luminance of c composited over white.
func luma(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	bg := 0xffff - a
	r += bg
	g += bg
	b += bg
	// Same weights as color.GrayModel.
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 24)
}
