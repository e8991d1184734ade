package encoder

import (
	"fmt"
	"strings"

	"github.com/nixxel-company-limited/posprint/receipt"
)

// Script builds TSPL label printer commands. Every command ends in CRLF.
type Script struct {
	buf strings.Builder
}

func NewScript() *Script {
	return &Script{}
}

// Size sets label dimensions in mm
func (s *Script) Size(width, height float64) *Script {
	fmt.Fprintf(&s.buf, "SIZE %.1f mm,%.1f mm\r\n", width, height)
	return s
}

// Gap sets the gap between labels and its offset in mm
func (s *Script) Gap(gap, offset float64) *Script {
	fmt.Fprintf(&s.buf, "GAP %.1f mm,%.1f mm\r\n", gap, offset)
	return s
}

// Direction sets print direction (0 or 1) and mirroring
func (s *Script) Direction(dir, mirror int) *Script {
	fmt.Fprintf(&s.buf, "DIRECTION %d,%d\r\n", dir, mirror)
	return s
}

// CLS clears the image buffer
func (s *Script) CLS() *Script {
	s.buf.WriteString("CLS\r\n")
	return s
}

// Text places a string at x,y dots using a built-in font.
func (s *Script) Text(x, y int, font string, rotation, xmul, ymul, align int, text string) *Script {
	fmt.Fprintf(&s.buf, "TEXT %d,%d,%q,%d,%d,%d,%d,\"%s\"\r\n", x, y, font, rotation, xmul, ymul, align, quote(text))
	return s
}

// Barcode places a CODE128 barcode with human readable text below it.
func (s *Script) Barcode(x, y, height int, code string) *Script {
	fmt.Fprintf(&s.buf, "BARCODE %d,%d,\"128\",%d,1,0,2,2,\"%s\"\r\n", x, y, height, quote(code))
	return s
}

// Print prints n copies
func (s *Script) Print(copies int) *Script {
	fmt.Fprintf(&s.buf, "PRINT %d\r\n", copies)
	return s
}

func (s *Script) Bytes() []byte {
	return []byte(s.buf.String())
}

func (s *Script) String() string {
	return s.buf.String()
}

// quote escapes double quotes the way TSPL expects inside string operands.
func quote(s string) string {
	return strings.ReplaceAll(s, `"`, `\["]`)
}

// dotsPerMM assumes a 203 dpi print head.
const dotsPerMM = 8

// LabelScript renders a barcode label for a dedicated label printer: the
// product name, the price (or SKU when no price is set) and a CODE128
// barcode of the SKU, printed Copies() times.
func LabelScript(label receipt.BarcodeLabel) []byte {
	size := label.LabelSize()
	margin := 2 * dotsPerMM
	height := int(size.HeightMM * dotsPerMM)

	second := label.SKU
	if !label.Price.IsZero() {
		second = label.Price.String()
	}

	barHeight := height - 12*dotsPerMM
	if barHeight < 4*dotsPerMM {
		barHeight = 4 * dotsPerMM
	}

	return NewScript().
		Size(size.WidthMM, size.HeightMM).
		Gap(size.GapMM, 0).
		Direction(1, 0).
		CLS().
		Text(margin, margin, "3", 0, 1, 1, 0, label.Name).
		Text(margin, margin+4*dotsPerMM, "2", 0, 1, 1, 0, second).
		Barcode(margin, margin+8*dotsPerMM, barHeight, label.SKU).
		Print(label.Copies()).
		Bytes()
}
