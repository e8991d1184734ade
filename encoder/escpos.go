package encoder

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

// Align is the ESC a justification argument.
type Align byte

const (
	AlignLeft   Align = 0
	AlignCenter Align = 1
	AlignRight  Align = 2
)

// Size is the GS ! character size argument.
type Size byte

const (
	SizeNormal       Size = 0x00
	SizeDoubleHeight Size = 0x01
	SizeDoubleWidth  Size = 0x10
	SizeDouble       Size = 0x11
)

// Cut is the GS V function argument.
type Cut byte

const (
	CutFull    Cut = 0x00
	CutPartial Cut = 0x01
)

// HRI is the GS H position of the human readable barcode text.
type HRI byte

const (
	HRINone  HRI = 0
	HRIAbove HRI = 1
	HRIBelow HRI = 2
	HRIBoth  HRI = 3
)

// barcodeCode128 is the GS k function B identifier for CODE128.
const barcodeCode128 = 73

// Buffer accumulates an ESC/POS command stream. Text is transcoded to code
// page 437; runes outside it become the encoder's replacement byte.
type Buffer struct {
	buf  bytes.Buffer
	text *encoding.Encoder
}

// NewBuffer returns an empty command stream.
func NewBuffer() *Buffer {
	return &Buffer{text: encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder())}
}

// Init emits ESC @ which resets the printer to its power-on mode.
func (b *Buffer) Init() *Buffer {
	b.buf.Write([]byte{esc, '@'})
	return b
}

func (b *Buffer) Bold(on bool) *Buffer {
	n := byte(0)
	if on {
		n = 1
	}
	b.buf.Write([]byte{esc, 'E', n})
	return b
}

func (b *Buffer) Align(a Align) *Buffer {
	b.buf.Write([]byte{esc, 'a', byte(a)})
	return b
}

func (b *Buffer) Size(s Size) *Buffer {
	b.buf.Write([]byte{gs, '!', byte(s)})
	return b
}

// Text writes s without a line feed.
func (b *Buffer) Text(s string) *Buffer {
	out, err := b.text.String(s)
	if err != nil {
		// ReplaceUnsupported never rejects input; fall back to raw bytes.
		out = s
	}
	b.buf.WriteString(out)
	return b
}

// Line writes s followed by a line feed.
func (b *Buffer) Line(s string) *Buffer {
	b.Text(s)
	b.buf.WriteByte(lf)
	return b
}

// Feed writes n bare line feeds.
func (b *Buffer) Feed(n int) *Buffer {
	for i := 0; i < n; i++ {
		b.buf.WriteByte(lf)
	}
	return b
}

func (b *Buffer) Cut(c Cut) *Buffer {
	b.buf.Write([]byte{gs, 'V', byte(c)})
	return b
}

// FeedCut advances the paper n dots and then performs a partial cut.
func (b *Buffer) FeedCut(n byte) *Buffer {
	b.buf.Write([]byte{gs, 'V', 'B', n})
	return b
}

// BarcodeOptions controls the appearance of a CODE128 barcode.
type BarcodeOptions struct {
	Height byte
	Width  byte
	HRI    HRI
}

// DefaultBarcodeOptions prints an 80 dot tall barcode with the text below.
var DefaultBarcodeOptions = BarcodeOptions{Height: 80, Width: 2, HRI: HRIBelow}

// Barcode emits the height, module width and HRI position settings followed
// by a CODE128 payload. The code is written as is, so it must use the
// printer's default code set; anything longer than 255 bytes is cut.
func (b *Buffer) Barcode(code string, opts BarcodeOptions) *Buffer {
	data := []byte(code)
	if len(data) > 255 {
		data = data[:255]
	}
	b.buf.Write([]byte{gs, 'h', opts.Height})
	b.buf.Write([]byte{gs, 'w', opts.Width})
	b.buf.Write([]byte{gs, 'H', byte(opts.HRI)})
	b.buf.Write([]byte{gs, 'k', barcodeCode128, byte(len(data))})
	b.buf.Write(data)
	return b
}

// Bytes returns a copy of the accumulated stream.
func (b *Buffer) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

func (b *Buffer) Len() int {
	return b.buf.Len()
}
