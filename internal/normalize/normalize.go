// =============================================================================
// CTe/NFe Enricher - Value Normalization
// =============================================================================
//
// This package turns raw dataset cells into the values the enricher works
// with, and formats numbers for generated texts and progress logs.
//
// NORMALIZATION TYPES:
//   - Monetary values in Brazilian ("1.234,56") or plain ("1234.56", "1.2e3")
//     notation, with currency symbols and other noise stripped
//   - Cancellation flags ("Sim", "S", "true", "1", ...)
//   - Free text with runs of spaces collapsed
//   - Commodity codes (NCM) that are all zeros or blank
//
// =============================================================================

package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxValueBytes is the working-buffer size for a monetary value.
// A value that needs more significant bytes is rejected, not truncated.
const MaxValueBytes = 64

// NoiseFloor is the smallest absolute item value that counts as an item.
const NoiseFloor = 0.00005

var (
	// ErrNoValue is returned when a cell holds no parsable number.
	ErrNoValue = errors.New("no numeric value")

	// ErrValueTooLong is returned when a cell needs more than MaxValueBytes
	// significant bytes.
	ErrValueTooLong = fmt.Errorf("numeric value exceeds %d characters", MaxValueBytes)
)

// multiSpace matches runs of two or more whitespace characters.
var multiSpace = regexp.MustCompile(`\s{2,}`)

// brazilian formats counts with dots as thousands separators.
var brazilian = message.NewPrinter(language.BrazilianPortuguese)

// =============================================================================
// MONETARY VALUES
// =============================================================================

// ParseItemValue parses a monetary cell.
//
// RULES:
//   - When the cell holds a comma, the comma is the decimal separator and
//     every dot is a thousands separator (dropped).
//   - Without a comma, a dot is the decimal separator.
//   - Digits, signs, dots and exponent markers (e, E) are kept; any other
//     byte (currency symbols, spaces, letters) is skipped.
//
// EXAMPLE:
//
//	"R$ 1.234,56" -> 1234.56
//	"1234.56"     -> 1234.56
//	"-1.500,00"   -> -1500
//	"1.5e3"       -> 1500
//
// RETURNS:
//   - The parsed value (sign preserved).
//   - ErrNoValue when nothing parsable remains.
//   - ErrValueTooLong when a byte arrives after the buffer is full.
func ParseItemValue(s string) (float64, error) {
	if s == "" {
		return 0, ErrNoValue
	}

	hasComma := strings.IndexByte(s, ',') >= 0

	var buf [MaxValueBytes]byte
	pos := 0

	for i := 0; i < len(s); i++ {
		if pos >= MaxValueBytes {
			return 0, ErrValueTooLong
		}

		switch b := s[i]; {
		case b == '.' && hasComma:
			continue
		case b == ',':
			buf[pos] = '.'
			pos++
		case b >= '0' && b <= '9', b == '-', b == '+', b == '.', b == 'e', b == 'E':
			buf[pos] = b
			pos++
		}
	}

	if pos == 0 {
		return 0, ErrNoValue
	}

	v, err := strconv.ParseFloat(string(buf[:pos]), 64)
	if err != nil {
		return 0, ErrNoValue
	}
	return v, nil
}

// Significant reports whether an item value lies above the noise floor.
func Significant(v float64) bool {
	return math.Abs(v) >= NoiseFloor
}

// FormatAmount renders the absolute value of v with two decimals.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
}

// FormatCount renders n with Brazilian thousands separators ("1.234.567").
func FormatCount(n int) string {
	return brazilian.Sprintf("%d", n)
}

// =============================================================================
// FLAGS AND TEXT
// =============================================================================

// IsCancelled reports whether a cancellation cell marks the document as
// cancelled. Only the exact tokens below count.
func IsCancelled(s string) bool {
	switch s {
	case "Sim", "SIM", "sim", "S", "s", "True", "true", "1":
		return true
	}
	return false
}

// CollapseSpaces replaces every run of two or more whitespace characters with
// a single space. Text without a double space is returned unchanged.
func CollapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return s
	}
	return multiSpace.ReplaceAllString(s, " ")
}

// HasNonZeroDigit reports whether s holds any digit from 1 to 9.
func HasNonZeroDigit(s string) bool {
	return strings.ContainsAny(s, "123456789")
}
