package encoder

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/posprint/receipt"
)

func sampleInvoice() receipt.Invoice {
	return receipt.Invoice{
		Business: receipt.Business{
			Name:    "Blue Door Cafe",
			Address: []string{"12 Harbour Road", "Kowloon"},
			Phone:   "555-0101",
		},
		Number:   "1001",
		IssuedAt: time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC),
		Items: []receipt.Item{
			{Name: "Flat White", Quantity: 2, Price: decimal.RequireFromString("4.25")},
			{Name: "Croissant", Quantity: 1, Price: decimal.RequireFromString("3.60"), Detail: "warmed"},
		},
		Totals: receipt.Totals{
			Subtotal: decimal.RequireFromString("12.10"),
			Taxes:    []receipt.TaxLine{{Label: "VAT 5%", Amount: decimal.RequireFromString("0.61")}},
			Total:    decimal.RequireFromString("12.71"),
		},
		PaymentMethod: "Card",
	}
}

func TestInvoiceDeterministic(t *testing.T) {
	for _, w := range []receipt.PaperWidth{receipt.Paper58mm, receipt.Paper80mm} {
		a := New(w).Invoice(sampleInvoice())
		b := New(w).Invoice(sampleInvoice())
		assert.Equal(t, a, b)
	}
}

func TestInvoiceFraming(t *testing.T) {
	out := New(receipt.Paper80mm).Invoice(sampleInvoice())

	assert.True(t, bytes.HasPrefix(out, []byte{0x1B, 0x40}), "starts with init")
	assert.True(t, bytes.HasSuffix(out, []byte{0x0A, 0x0A, 0x0A, 0x1D, 0x56, 0x01}), "ends with feeds and partial cut")
}

func TestInvoiceNumbers(t *testing.T) {
	out := string(New(receipt.Paper80mm).Invoice(sampleInvoice()))

	// item rows show whole units, summaries keep their decimals
	assert.Contains(t, out, PricedItemRow(2, "Flat White", "9", 48))
	assert.Contains(t, out, PricedItemRow(1, "Croissant", "4", 48))
	assert.Contains(t, out, DetailLine("warmed", 48))
	assert.Contains(t, out, TwoColumn("Subtotal", "12.1", 48))
	assert.Contains(t, out, TwoColumn("TOTAL", "12.71", 48))
	assert.Contains(t, out, TwoColumn("VAT 5%", "0.61", 48))
	assert.Contains(t, out, TwoColumn("Invoice #1001", "15/10/2026 12:30", 48))
	assert.Contains(t, out, Center(DefaultFooter, 48))
}

func TestInvoiceLinesFitBudget(t *testing.T) {
	inv := sampleInvoice()
	inv.Items = append(inv.Items, receipt.Item{
		Name:     strings.Repeat("Extremely long product name ", 4),
		Quantity: 3,
		Price:    decimal.NewFromInt(1),
		Detail:   strings.Repeat("detail ", 10),
	})
	out := New(receipt.Paper58mm).Invoice(inv)

	for _, line := range strings.Split(string(out), "\n") {
		text := stripCommands(line)
		assert.LessOrEqual(t, len(text), 32, "line %q", text)
	}
}

func TestKitchenTicket(t *testing.T) {
	kot := receipt.KitchenTicket{
		Business:  receipt.Business{Name: "Blue Door Cafe"},
		Number:    "42",
		CreatedAt: time.Date(2026, 10, 15, 9, 5, 0, 0, time.UTC),
		Table:     "7",
		Items: []receipt.Item{
			{Name: "Pad Thai", Quantity: 2, Price: decimal.NewFromInt(12), Detail: "no peanuts"},
			{Name: "Spring Rolls", Quantity: 1, Price: decimal.NewFromInt(6)},
		},
		Notes: "rush",
	}
	out := string(New(receipt.Paper58mm).KitchenTicket(kot))

	assert.Contains(t, out, ThreeColumn("KOT #42", "Table 7", "09:05", 32))
	assert.Contains(t, out, ItemRow(2, "Pad Thai", 32))
	assert.Contains(t, out, DetailLine("no peanuts", 32))
	assert.Contains(t, out, TwoColumn("Total Items", "3", 32))
	assert.NotContains(t, out, "12")
	assert.True(t, strings.HasSuffix(out, "\n\n\n\x1dV\x01"))
}

func TestBarcodeCommandSequence(t *testing.T) {
	label := receipt.BarcodeLabel{SKU: "SKU123", Name: "Soap"}
	out := New(receipt.Paper58mm).Barcode(label)

	want := []byte{
		0x1D, 'h', 80,
		0x1D, 'w', 2,
		0x1D, 'H', 2,
		0x1D, 'k', 73, 6,
	}
	want = append(want, "SKU123"...)
	assert.Equal(t, 1, bytes.Count(out, want))
}

func TestBarcodeCopies(t *testing.T) {
	label := receipt.BarcodeLabel{SKU: "A1", Name: "Soap", Quantity: 3}
	out := New(receipt.Paper58mm).Barcode(label)
	assert.Equal(t, 3, bytes.Count(out, []byte{0x1D, 'k', 73}))
}

func TestEncodeDispatch(t *testing.T) {
	enc := New(receipt.Paper80mm)
	label := receipt.BarcodeLabel{SKU: "SKU123", Name: "Soap", Quantity: 2}

	script, err := enc.Encode(receipt.JobBarcodeLabel, label)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(script, []byte("SIZE ")))

	stream, err := enc.Encode(receipt.JobBarcode, label)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(stream, []byte{0x1B, 0x40}))

	_, err = enc.Encode(receipt.JobKOT, label)
	assert.ErrorIs(t, err, receipt.ErrUnsupportedJobType)
}

func TestOptions(t *testing.T) {
	out := New(receipt.Paper58mm, WithFeedLines(1), WithCut(CutNone)).KitchenTicket(receipt.KitchenTicket{})
	assert.False(t, bytes.Contains(out, []byte{0x1D, 'V'}))
	assert.Equal(t, byte(0x0A), out[len(out)-1])

	out = New(receipt.Paper58mm, WithCut(CutFull)).KitchenTicket(receipt.KitchenTicket{})
	assert.True(t, bytes.HasSuffix(out, []byte{0x1D, 'V', 0x00}))
}

func TestUnknownWidthFallsBack(t *testing.T) {
	enc := New(receipt.PaperWidth(72))
	assert.Equal(t, receipt.Paper58mm, enc.Width())
	assert.Equal(t, 32, enc.Chars())
}

func TestTextTranscoding(t *testing.T) {
	out := NewBuffer().Text("café €").Bytes()
	// é is 0x82 in code page 437; the euro sign has no mapping
	assert.Equal(t, byte(0x82), out[3])
	assert.Len(t, out, 6)
}

// stripCommands drops ESC/POS command sequences so only printable text
// remains.
func stripCommands(line string) string {
	var sb strings.Builder
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case 0x1B:
			if i+1 < len(line) && line[i+1] == '@' {
				i++
			} else {
				i += 2
			}
		case 0x1D:
			i += 2
		default:
			sb.WriteByte(line[i])
		}
	}
	return sb.String()
}
