package encoder

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTwoColumnFillsBudget(t *testing.T) {
	testCases := []struct {
		left, right string
		width       int
	}{
		{"Subtotal", "120.50", 32},
		{"Subtotal", "120.50", 48},
		{"", "x", 32},
		{"Invoice #1001", "15/10/2026 12:30", 48},
	}
	for _, tc := range testCases {
		line := TwoColumn(tc.left, tc.right, tc.width)
		assert.Equal(t, tc.width, utf8.RuneCountInString(line), "line %q", line)
		assert.True(t, strings.HasPrefix(line, tc.left))
		assert.True(t, strings.HasSuffix(line, tc.right))
	}
}

func TestTwoColumnOverflowKeepsOneSpace(t *testing.T) {
	left := strings.Repeat("L", 20)
	right := strings.Repeat("R", 20)
	assert.Equal(t, left+" "+right, TwoColumn(left, right, 32))
}

func TestThreeColumnSplit(t *testing.T) {
	line := ThreeColumn("A", "B", "C", 48)
	assert.Equal(t, "A"+strings.Repeat(" ", 22)+"B"+strings.Repeat(" ", 23)+"C", line)
	assert.Len(t, line, 48)

	// no room left still separates the columns
	assert.Equal(t, "aaaa bbbb cccc", ThreeColumn("aaaa", "bbbb", "cccc", 10))
}

func TestCenter(t *testing.T) {
	assert.Equal(t, "   abcd", Center("abcd", 11))
	assert.Equal(t, "  abcd", Center("abcd", 8))
	assert.Equal(t, "too long", Center("too long", 4))
}

func TestWordWrap(t *testing.T) {
	assert.Equal(t, []string{"abcde", "fghij", "klmno"}, WordWrap("abcde fghij klmno", 10))
	assert.Equal(t, []string{"ab cd", "ef"}, WordWrap("ab cd ef", 5))
	assert.Equal(t, []string{"tiny", "enormousword", "x"}, WordWrap("tiny enormousword x", 6))
	assert.Nil(t, WordWrap("   ", 10))

	for _, l := range WordWrap("the quick brown fox jumps over the lazy dog", 12) {
		assert.LessOrEqual(t, len(l), 12)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "", Truncate("ab", 0))
	assert.Equal(t, "Crè", Truncate("Crème", 3))
}

func TestQuantityField(t *testing.T) {
	assert.Equal(t, "2x   ", QuantityField(2))
	assert.Equal(t, "12x  ", QuantityField(12))
	assert.Len(t, QuantityField(123456), QtyWidth)
}

func TestItemRows(t *testing.T) {
	row := PricedItemRow(2, "Masala Chai", "40", 32)
	assert.Len(t, row, 32)
	assert.True(t, strings.HasPrefix(row, "2x   Masala Chai"))
	assert.True(t, strings.HasSuffix(row, "        40"))

	long := strings.Repeat("n", 60)
	assert.Len(t, PricedItemRow(1, long, "100", 48), 48)
	assert.Equal(t, "1x   "+strings.Repeat("n", 27), ItemRow(1, long, 32))

	assert.Equal(t, "     "+strings.Repeat("d", 27), DetailLine(strings.Repeat("d", 40), 32))
}
