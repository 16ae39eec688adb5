// =============================================================================
// CTe/NFe Enricher - Fiscal Document Key
// =============================================================================
//
// This package implements the 44-digit electronic fiscal document key
// ("chave de acesso") shared by invoices (NF-e, model 55) and transport
// manifests (CT-e, model 57).
//
// KEY LAYOUT (digits, 1-indexed):
//   01-02  UF code
//   03-06  year/month of issue
//   07-20  issuer CNPJ
//   21-22  document model   <- "55" = NF-e, "57" = CT-e
//   23-44  series, number, emission type, numeric code, check digit
//
// A Key is a plain [44]byte value: it is copied by value, compared with ==
// and used directly as a map key, so no heap allocation is involved in
// parsing, hashing or comparing keys.
//
// =============================================================================

package fiscalkey

import (
	"bytes"
	"errors"
	"regexp"
)

// Length is the number of digits in a fiscal document key.
const Length = 44

// modelOffset is the 0-based offset of the two-digit document model.
const modelOffset = 20

// ErrInvalidKey is returned when a text does not hold exactly 44 digits.
var ErrInvalidKey = errors.New("invalid fiscal key: expected exactly 44 digits")

// keyPattern matches isolated runs of exactly 44 digits.
// A run of 45 or more digits has no word boundary after the 44th digit and
// therefore never matches.
var keyPattern = regexp.MustCompile(`\b\d{44}\b`)

// =============================================================================
// KEY TYPE
// =============================================================================

// Key is a validated 44-digit fiscal document key.
// The zero value is not a valid key; obtain keys through Parse or FindAll.
type Key [Length]byte

// Kind classifies a key by its document model.
type Kind int

const (
	// Other is any model this tool does not track.
	Other Kind = iota
	// Invoice is an NF-e (model 55).
	Invoice
	// Manifest is a CT-e (model 57).
	Manifest
)

// String returns the kind label used in generated cross-reference texts.
func (k Kind) String() string {
	switch k {
	case Invoice:
		return "NFe"
	case Manifest:
		return "CTe"
	default:
		return "Outro"
	}
}

// Parse builds a Key from text that may carry non-digit noise such as
// quotes, brackets or spaces.
//
// PARAMETERS:
//   - s: The text to parse.
//
// RETURNS:
//   - The Key holding the 44 digits found in s, in order.
//   - ErrInvalidKey if s holds fewer than 44 digits, or if a 45th digit
//     appears. Excess digits reject the key; they are never truncated.
func Parse(s string) (Key, error) {
	var k Key

	// Fewer than 44 bytes cannot hold 44 digits.
	if len(s) < Length {
		return k, ErrInvalidKey
	}

	n := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b-'0' >= 10 {
			continue
		}
		if n == Length {
			return Key{}, ErrInvalidKey
		}
		k[n] = b
		n++
	}

	if n != Length {
		return Key{}, ErrInvalidKey
	}
	return k, nil
}

// MustParse is like Parse but panics on invalid input.
// It is intended for tests and constants.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FindAll returns every valid key embedded in line, in order of appearance.
// Only digit runs of exactly 44 digits standing on word boundaries count.
func FindAll(line string) []Key {
	matches := keyPattern.FindAllString(line, -1)
	if len(matches) == 0 {
		return nil
	}

	keys := make([]Key, 0, len(matches))
	for _, m := range matches {
		if k, err := Parse(m); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// IsInvoice reports whether the key identifies an NF-e (model 55).
func (k Key) IsInvoice() bool {
	return k[modelOffset] == '5' && k[modelOffset+1] == '5'
}

// IsManifest reports whether the key identifies a CT-e (model 57).
func (k Key) IsManifest() bool {
	return k[modelOffset] == '5' && k[modelOffset+1] == '7'
}

// Kind returns the document kind of the key.
func (k Key) Kind() Kind {
	switch {
	case k.IsInvoice():
		return Invoice
	case k.IsManifest():
		return Manifest
	default:
		return Other
	}
}

// =============================================================================
// FORMATTING AND ORDERING
// =============================================================================

// String returns the 44 digits.
func (k Key) String() string {
	return string(k[:])
}

// Quoted returns the key wrapped in single quotes.
// Spreadsheet tools would otherwise read a 44-digit cell as a number in
// scientific notation and lose digits.
func (k Key) Quoted() string {
	var buf [Length + 2]byte
	buf[0] = '\''
	copy(buf[1:], k[:])
	buf[Length+1] = '\''
	return string(buf[:])
}

// GoString implements fmt.GoStringer for readable %#v output.
func (k Key) GoString() string {
	return "fiscalkey.Key(" + k.String() + ")"
}

// Compare orders keys lexicographically over their digits.
// It returns -1, 0 or +1.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k[:], other[:])
}
