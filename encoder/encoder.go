// Package encoder turns receipt documents into printer command streams:
// ESC/POS bytes for receipt printers and TSPL scripts for label printers.
//
// An Encoder is bound to one paper width. Output depends only on the input
// document and the options, so encoding the same document twice yields the
// same bytes.
package encoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nixxel-company-limited/posprint/receipt"
)

// CutNone leaves the paper uncut after a document.
const CutNone Cut = 0xFF

const (
	DefaultFeedLines = 3
	DefaultFooter    = "Thank you! Please visit again"

	timeLayout = "02/01/2006 15:04"
)

// Options tune document finishing.
type Options struct {
	FeedLines int
	Cut       Cut
	Barcode   BarcodeOptions
}

// Option mutates Options.
type Option func(*Options)

func WithFeedLines(n int) Option {
	return func(o *Options) { o.FeedLines = n }
}

func WithCut(c Cut) Option {
	return func(o *Options) { o.Cut = c }
}

func WithBarcode(b BarcodeOptions) Option {
	return func(o *Options) { o.Barcode = b }
}

// Encoder renders documents for a fixed paper width.
type Encoder struct {
	width receipt.PaperWidth
	chars int
	opts  Options
}

// New returns an Encoder for width. Unknown widths fall back to 58mm.
func New(width receipt.PaperWidth, opts ...Option) *Encoder {
	if !width.Valid() {
		width = receipt.Paper58mm
	}
	o := Options{
		FeedLines: DefaultFeedLines,
		Cut:       CutPartial,
		Barcode:   DefaultBarcodeOptions,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{width: width, chars: width.Chars(), opts: o}
}

func (e *Encoder) Width() receipt.PaperWidth { return e.width }

// Chars is the line budget in characters.
func (e *Encoder) Chars() int { return e.chars }

// Encode renders doc for the given job type. BARCODE_LABEL produces a TSPL
// script, every other type an ESC/POS stream. The only error is a job type
// that does not match the document.
func (e *Encoder) Encode(t receipt.JobType, doc receipt.Document) ([]byte, error) {
	if err := receipt.Check(t, doc); err != nil {
		return nil, err
	}
	switch d := doc.(type) {
	case receipt.Invoice:
		return e.Invoice(d), nil
	case receipt.KitchenTicket:
		return e.KitchenTicket(d), nil
	case receipt.BarcodeLabel:
		if t == receipt.JobBarcodeLabel {
			return LabelScript(d), nil
		}
		return e.Barcode(d), nil
	}
	return nil, fmt.Errorf("%w: %T", receipt.ErrUnsupportedJobType, doc)
}

// Invoice renders a customer receipt.
func (e *Encoder) Invoice(inv receipt.Invoice) []byte {
	b := NewBuffer().Init()
	e.header(b, inv.Business)

	b.Line(Divider('=', e.chars))
	if inv.Number != "" || !inv.IssuedAt.IsZero() {
		left := ""
		if inv.Number != "" {
			left = "Invoice #" + inv.Number
		}
		b.Line(TwoColumn(left, formatTime(inv.IssuedAt), e.chars))
	}
	if inv.Customer != "" {
		b.Line(Truncate("Customer: "+inv.Customer, e.chars))
	}
	if inv.Table != "" {
		b.Line(Truncate("Table: "+inv.Table, e.chars))
	}

	b.Line(Divider('-', e.chars))
	nameWidth := e.chars - QtyWidth - AmountWidth
	b.Bold(true).
		Line(PadRight("Qty", QtyWidth) + PadRight("Item", nameWidth) + PadLeft("Amount", AmountWidth)).
		Bold(false)
	b.Line(Divider('-', e.chars))
	for _, item := range inv.Items {
		b.Line(PricedItemRow(item.Quantity, item.Name, item.Total().Round(0).String(), e.chars))
		if item.Detail != "" {
			b.Line(DetailLine(item.Detail, e.chars))
		}
	}
	b.Line(Divider('-', e.chars))

	t := inv.Totals
	b.Line(TwoColumn("Subtotal", t.Subtotal.String(), e.chars))
	for _, tax := range t.Taxes {
		b.Line(TwoColumn(tax.Label, tax.Amount.String(), e.chars))
	}
	if !t.Discount.IsZero() {
		b.Line(TwoColumn("Discount", "-"+t.Discount.Abs().String(), e.chars))
	}
	b.Bold(true).Size(SizeDoubleHeight).
		Line(TwoColumn("TOTAL", t.Total.String(), e.chars)).
		Size(SizeNormal).Bold(false)
	b.Line(Divider('=', e.chars))

	if inv.PaymentMethod != "" {
		b.Line(TwoColumn("Paid by", inv.PaymentMethod, e.chars))
	}
	if inv.Notes != "" {
		b.Line("Notes:")
		for _, l := range WordWrap(inv.Notes, e.chars) {
			b.Line(l)
		}
	}

	footer := inv.Footer
	if footer == "" {
		footer = DefaultFooter
	}
	b.Feed(1)
	for _, l := range WordWrap(footer, e.chars) {
		b.Line(Center(l, e.chars))
	}

	e.finish(b)
	return b.Bytes()
}

// KitchenTicket renders a kitchen order ticket. Prices are never printed.
func (e *Encoder) KitchenTicket(kot receipt.KitchenTicket) []byte {
	b := NewBuffer().Init()

	b.Align(AlignCenter).Bold(true).Size(SizeDouble).
		Line("KOT").
		Size(SizeNormal).Bold(false)
	if kot.Business.Name != "" {
		b.Line(Truncate(kot.Business.Name, e.chars))
	}
	b.Align(AlignLeft)

	b.Line(Divider('=', e.chars))
	number := "KOT"
	if kot.Number != "" {
		number = "KOT #" + kot.Number
	}
	table := ""
	if kot.Table != "" {
		table = "Table " + kot.Table
	}
	b.Line(ThreeColumn(number, table, formatClock(kot), e.chars))
	if kot.OrderType != "" {
		b.Line(Truncate("Type: "+kot.OrderType, e.chars))
	}
	if kot.Server != "" {
		b.Line(Truncate("Server: "+kot.Server, e.chars))
	}
	b.Line(Divider('-', e.chars))

	count := 0
	b.Size(SizeDoubleHeight)
	for _, item := range kot.Items {
		b.Line(ItemRow(item.Quantity, item.Name, e.chars))
		if item.Detail != "" {
			b.Line(DetailLine(item.Detail, e.chars))
		}
		count += item.Quantity
	}
	b.Size(SizeNormal)

	b.Line(Divider('-', e.chars))
	b.Bold(true).Line(TwoColumn("Total Items", strconv.Itoa(count), e.chars)).Bold(false)
	if kot.Notes != "" {
		for _, l := range WordWrap("Note: "+kot.Notes, e.chars) {
			b.Line(l)
		}
	}

	e.finish(b)
	return b.Bytes()
}

// Barcode renders product labels on a receipt printer, one block per copy.
func (e *Encoder) Barcode(label receipt.BarcodeLabel) []byte {
	b := NewBuffer().Init().Align(AlignCenter)
	for i := 0; i < label.Copies(); i++ {
		if label.Name != "" {
			b.Bold(true).Line(Truncate(label.Name, e.chars)).Bold(false)
		}
		if !label.Price.IsZero() {
			b.Line(label.Price.String())
		}
		b.Barcode(label.SKU, e.opts.Barcode).Feed(2)
	}
	b.Align(AlignLeft)

	e.finish(b)
	return b.Bytes()
}

func (e *Encoder) header(b *Buffer, biz receipt.Business) {
	b.Align(AlignCenter).Bold(true).Size(SizeDouble).
		Line(biz.Name).
		Size(SizeNormal).Bold(false).
		Align(AlignLeft)
	if len(biz.Address) > 0 {
		for _, l := range WordWrap(strings.Join(biz.Address, ", "), e.chars) {
			b.Line(Center(l, e.chars))
		}
	}
	if biz.Phone != "" {
		b.Line(Center("Tel: "+biz.Phone, e.chars))
	}
	if biz.TaxID != "" {
		b.Line(Center("Tax ID: "+biz.TaxID, e.chars))
	}
}

func (e *Encoder) finish(b *Buffer) {
	b.Feed(e.opts.FeedLines)
	if e.opts.Cut != CutNone {
		b.Cut(e.opts.Cut)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func formatClock(kot receipt.KitchenTicket) string {
	if kot.CreatedAt.IsZero() {
		return ""
	}
	return kot.CreatedAt.Format("15:04")
}
