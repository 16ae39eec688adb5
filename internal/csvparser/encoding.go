package csvparser

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
)

// lookupEncoding resolves a dataset encoding. UTF-8 resolves to nil: the
// bytes are used as they are, without validation, so invalid sequences
// survive a pass-through untouched.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch config.NormalizeEncoding(name) {
	case "UTF-8":
		return nil, nil
	case "ISO-8859-1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// decode wraps r so that it yields UTF-8.
func decode(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// newEncoder returns the encoder for rewritten rows, or nil when the
// dataset is UTF-8. Runes that enc cannot represent are replaced.
func newEncoder(enc encoding.Encoding) *encoding.Encoder {
	if enc == nil {
		return nil
	}
	return encoding.ReplaceUnsupported(enc.NewEncoder())
}
