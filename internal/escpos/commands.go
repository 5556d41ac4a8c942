// Package escpos builds byte-exact ESC/POS command streams for receipt
// printers: text tickets, raster pages and device control.
package escpos

const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// Alignment values for ESC a.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// maxRasterRows is the largest height a single GS v 0 header can carry.
const maxRasterRows = 0xFFFF

var (
	cmdInit   = []byte{ESC, '@'}
	cmdCut    = []byte{GS, 'V', 0x00}
	cmdDrawer = []byte{ESC, 'p', 0x00, 0x19, 0xFA}
)

func lineSpacing(dots byte) []byte { return []byte{ESC, '3', dots} }

func feedLines(n byte) []byte { return []byte{ESC, 'd', n} }

// selectCodePage is ESC t n.
func selectCodePage(n byte) []byte { return []byte{ESC, 't', n} }

func align(a Alignment) []byte { return []byte{ESC, 'a', byte(a)} }

// rasterHeader is GS v 0 in normal density mode.
func rasterHeader(widthBytes, height int) []byte {
	return []byte{
		GS, 'v', '0', 0x00,
		byte(widthBytes), byte(widthBytes >> 8),
		byte(height), byte(height >> 8),
	}
}
