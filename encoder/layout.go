package encoder

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// QtyWidth is the fixed width of the quantity column, "12x  ".
	QtyWidth = 5
	// AmountWidth is the right-justified amount column on invoice rows.
	AmountWidth = 10
	// DetailIndent is the indent of the detail line under an item.
	DetailIndent = 5
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// PadRight pads s with spaces up to n runes. Longer strings are unchanged.
func PadRight(s string, n int) string {
	if gap := n - runeLen(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// PadLeft right-justifies s in n runes. Longer strings are unchanged.
func PadLeft(s string, n int) string {
	if gap := n - runeLen(s); gap > 0 {
		return strings.Repeat(" ", gap) + s
	}
	return s
}

// Divider is a full-width rule.
func Divider(ch rune, width int) string {
	if width <= 0 {
		return ""
	}
	return strings.Repeat(string(ch), width)
}

// TwoColumn places left flush left and right flush right with at least one
// space between them. Nothing is truncated, so an overlong pair exceeds
// width.
func TwoColumn(left, right string, width int) string {
	gap := width - runeLen(left) - runeLen(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// ThreeColumn spreads a, b and c across width. The spare space is split with
// the smaller half on the left; each gap is at least one space.
func ThreeColumn(a, b, c string, width int) string {
	rest := width - runeLen(a) - runeLen(b) - runeLen(c)
	left := rest / 2
	right := rest - left
	if left < 1 {
		left = 1
	}
	if right < 1 {
		right = 1
	}
	return a + strings.Repeat(" ", left) + b + strings.Repeat(" ", right) + c
}

// Center left-pads s so it sits in the middle of width. No right padding is
// added.
func Center(s string, width int) string {
	pad := (width - runeLen(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

// WordWrap greedily packs words into lines of at most width runes. Words are
// never split, so a single word longer than width gets a line of its own.
func WordWrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if runeLen(cur)+1+runeLen(w) <= width {
			cur += " " + w
			continue
		}
		lines = append(lines, cur)
		cur = w
	}
	return append(lines, cur)
}

// QuantityField renders "<qty>x" padded to QtyWidth.
func QuantityField(qty int) string {
	return PadRight(Truncate(strconv.Itoa(qty)+"x", QtyWidth), QtyWidth)
}

// ItemRow is a kitchen ticket row: quantity column then the name truncated
// to the remaining width.
func ItemRow(qty int, name string, width int) string {
	return QuantityField(qty) + Truncate(name, width-QtyWidth)
}

// PricedItemRow is an invoice row: quantity column, name padded to fill the
// middle and amount right-justified in AmountWidth.
func PricedItemRow(qty int, name, amount string, width int) string {
	nameWidth := width - QtyWidth - AmountWidth
	return QuantityField(qty) + PadRight(Truncate(name, nameWidth), nameWidth) + PadLeft(amount, AmountWidth)
}

// DetailLine indents a modifier or note under its item row.
func DetailLine(detail string, width int) string {
	return strings.Repeat(" ", DetailIndent) + Truncate(detail, width-DetailIndent)
}
