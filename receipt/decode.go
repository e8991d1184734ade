package receipt

import (
	"encoding/json"
	"fmt"
)

// Decode parses a JSON payload into the document kind t expects.
func Decode(t JobType, raw []byte) (Document, error) {
	switch t {
	case JobInvoice:
		var inv Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return inv, nil
	case JobKOT:
		var kot KitchenTicket
		if err := json.Unmarshal(raw, &kot); err != nil {
			return nil, fmt.Errorf("decode kitchen ticket: %w", err)
		}
		return kot, nil
	case JobBarcode, JobBarcodeLabel:
		var label BarcodeLabel
		if err := json.Unmarshal(raw, &label); err != nil {
			return nil, fmt.Errorf("decode barcode label: %w", err)
		}
		return label, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedJobType, t)
}
