// Package receipt defines the documents a caller can print: invoices,
// kitchen order tickets and barcode labels.
//
// Documents are plain values. They are built by the caller, handed to the
// encoder once and never mutated afterwards.
package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaperWidth is the physical roll width in millimetres.
type PaperWidth int

const (
	Paper58mm PaperWidth = 58
	Paper80mm PaperWidth = 80
)

// Chars returns the character-per-line budget for the paper width.
func (w PaperWidth) Chars() int {
	if w == Paper80mm {
		return 48
	}
	return 32
}

// Valid reports whether w is one of the two supported widths.
func (w PaperWidth) Valid() bool {
	return w == Paper58mm || w == Paper80mm
}

func (w PaperWidth) String() string {
	return fmt.Sprintf("%dmm", int(w))
}

// ParsePaperWidth accepts "58", "58mm", "80" and "80mm".
func ParsePaperWidth(s string) (PaperWidth, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "mm") {
	case "58":
		return Paper58mm, nil
	case "80":
		return Paper80mm, nil
	}
	return 0, fmt.Errorf("unsupported paper width %q", s)
}

// JobType selects both the document kind and the encoding target.
type JobType string

const (
	JobKOT          JobType = "KOT"
	JobInvoice      JobType = "INVOICE"
	JobBarcode      JobType = "BARCODE"
	JobBarcodeLabel JobType = "BARCODE_LABEL"
)

// ErrUnsupportedJobType is returned for job types outside the known set or
// for a payload that does not match its job type.
var ErrUnsupportedJobType = errors.New("unsupported job type")

// ParseJobType normalises s and checks it against the known job types.
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case JobKOT, JobInvoice, JobBarcode, JobBarcodeLabel:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedJobType, s)
}

// Document is the closed union of printable documents.
type Document interface {
	document()
}

// Business identifies the issuer printed in receipt headers.
type Business struct {
	Name    string   `json:"name"`
	Address []string `json:"address,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	TaxID   string   `json:"tax_id,omitempty"`
}

// Item is a single line item. Price is the unit price.
type Item struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Detail   string          `json:"detail,omitempty"`
}

// Total is the line amount, unit price times quantity.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TaxLine is a named tax amount shown in the invoice summary.
type TaxLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals is the invoice summary block.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Taxes    []TaxLine       `json:"taxes,omitempty"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Invoice is a customer-facing receipt.
type Invoice struct {
	Business      Business  `json:"business"`
	Number        string    `json:"number,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	Customer      string    `json:"customer,omitempty"`
	Table         string    `json:"table,omitempty"`
	Items         []Item    `json:"items"`
	Totals        Totals    `json:"totals"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Footer        string    `json:"footer,omitempty"`
}

// KitchenTicket is the kitchen-facing variant of an order. It carries no
// prices.
type KitchenTicket struct {
	Business  Business  `json:"business"`
	Number    string    `json:"number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Table     string    `json:"table,omitempty"`
	OrderType string    `json:"order_type,omitempty"`
	Server    string    `json:"server,omitempty"`
	Items     []Item    `json:"items"`
	Notes     string    `json:"notes,omitempty"`
}

// LabelSize is the physical label stock used by label printers.
type LabelSize struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
	GapMM    float64 `json:"gap_mm"`
}

// DefaultLabelSize is used when a BarcodeLabel leaves Size empty.
var DefaultLabelSize = LabelSize{WidthMM: 50, HeightMM: 25, GapMM: 2}

// BarcodeLabel is a product label carrying a code-128 barcode of the SKU.
type BarcodeLabel struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Size     LabelSize       `json:"size"`
}

// Copies is the number of labels to print, at least one.
func (l BarcodeLabel) Copies() int {
	if l.Quantity < 1 {
		return 1
	}
	return l.Quantity
}

// LabelSize returns Size with DefaultLabelSize filling zero dimensions.
func (l BarcodeLabel) LabelSize() LabelSize {
	s := l.Size
	if s.WidthMM <= 0 {
		s.WidthMM = DefaultLabelSize.WidthMM
	}
	if s.HeightMM <= 0 {
		s.HeightMM = DefaultLabelSize.HeightMM
	}
	if s.GapMM <= 0 {
		s.GapMM = DefaultLabelSize.GapMM
	}
	return s
}

func (Invoice) document()       {}
func (KitchenTicket) document() {}
func (BarcodeLabel) document()  {}

// Check verifies that doc is the document kind t expects.
func Check(t JobType, doc Document) error {
	ok := false
	switch t {
	case JobInvoice:
		_, ok = doc.(Invoice)
	case JobKOT:
		_, ok = doc.(KitchenTicket)
	case JobBarcode, JobBarcodeLabel:
		_, ok = doc.(BarcodeLabel)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedJobType, t)
	}
	if !ok {
		return fmt.Errorf("%w: %s payload is %T", ErrUnsupportedJobType, t, doc)
	}
	return nil
}
