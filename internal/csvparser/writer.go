package csvparser

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
)

// writeBufferSize is the write buffer between the encoder and the file.
const writeBufferSize = 4 << 20

// Writer writes a dataset in a given dialect and encoding.
//
// Bytes written through Write (rows passed through by the parser) are
// already in the dataset encoding and reach the file untouched. Only rows
// built by WriteRecord go through the encoder.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	encoder *encoding.Encoder
	dialect Dialect
	scratch []byte
}

// NewWriter creates (or truncates) the file at path.
func NewWriter(path string, settings config.DatasetSettings, dialect Dialect) (*Writer, error) {
	enc, err := lookupEncoding(settings.Encoding)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	buf := bufio.NewWriterSize(file, writeBufferSize)
	return &Writer{
		file:    file,
		buf:     buf,
		encoder: newEncoder(enc),
		dialect: dialect,
	}, nil
}

// Write writes bytes in the dataset encoding as they are.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// WriteRecord encodes one row in the writer dialect, followed by the line
// terminator.
func (w *Writer) WriteRecord(fields []string) error {
	b := w.scratch[:0]
	for i, field := range fields {
		if i > 0 {
			b = utf8.AppendRune(b, w.dialect.Comma)
		}
		if !w.dialect.QuoteAll && !fieldNeedsQuotes(field, w.dialect.Comma) {
			b = append(b, field...)
			continue
		}
		b = append(b, '"')
		b = append(b, strings.ReplaceAll(field, `"`, `""`)...)
		b = append(b, '"')
	}
	if w.dialect.CRLF {
		b = append(b, '\r', '\n')
	} else {
		b = append(b, '\n')
	}
	w.scratch = b

	if w.encoder != nil {
		encoded, err := w.encoder.Bytes(b)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
		b = encoded
	}
	if _, err := w.buf.Write(b); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// Close flushes every pending byte and closes the file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return w.file.Close()
}

// fieldNeedsQuotes follows the minimal quoting rules of encoding/csv.
func fieldNeedsQuotes(field string, comma rune) bool {
	if field == "" {
		return false
	}
	if field == `\.` {
		return true
	}
	if strings.ContainsRune(field, comma) || strings.ContainsAny(field, "\"\r\n") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(field)
	return unicode.IsSpace(r)
}
