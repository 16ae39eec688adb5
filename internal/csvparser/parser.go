// =============================================================================
// CTe/NFe Enricher - Dataset Parser
// =============================================================================
//
// This module streams the delimited fiscal dataset row by row. Besides the
// parsed fields, it keeps the exact bytes each row was read from, so that a
// row nobody changed can be written back byte for byte.
//
// FEATURES:
//   - Configurable delimiter and encoding (UTF-8, ISO-8859-1, Windows-1252)
//   - Lazy or strict quote handling
//   - Fixed column count: a row with a different number of fields than the
//     header is a structural error
//   - Dialect detection on the header row (quote-all vs minimal quoting,
//     LF vs CRLF line endings), used when rewriting changed rows
//   - Memory-efficient: one row in memory at a time
//
// RAW BYTE TRACKING:
//   The CSV reader consumes input through a tee that keeps every byte read.
//   After each row, csv.Reader.InputOffset tells where the row ended, so the
//   bytes from the end of the previous row up to that offset are exactly
//   the current row (including any blank lines before it). PassThrough
//   copies them, Discard drops them.
//
//   For single-byte encodings a second tee keeps the undecoded file bytes.
//   Every file byte decodes to exactly one rune, so the rune count of a
//   decoded row is its length in the file. PassThrough copies the file
//   bytes, never a re-encoding of them.
//
// USAGE:
//   parser, err := csvparser.NewStreamingParser(path, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   parser.PassThrough(out)              // header
//   for parser.Next() {
//       if changed {
//           parser.Replace(out, fields)
//       } else {
//           parser.PassThrough(out)
//       }
//   }
//   if err := parser.Err(); err != nil {
//       return err
//   }
//
// =============================================================================

package csvparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// readBufferSize is the read buffer between the file and the decoder.
const readBufferSize = 4 << 20

// maxErrorContent bounds the raw content quoted in structural errors.
const maxErrorContent = 2048

// utf8BOM marks UTF-8 files written by spreadsheet tools.
const utf8BOM = "\ufeff"

// =============================================================================
// DIALECT
// =============================================================================

// Dialect describes how rows of a dataset are written.
type Dialect struct {
	// Comma is the field delimiter.
	Comma rune

	// QuoteAll quotes every field instead of only those that need it.
	QuoteAll bool

	// CRLF terminates rows with "\r\n" instead of "\n".
	CRLF bool
}

// =============================================================================
// STREAMING PARSER
// =============================================================================

// StreamingParser reads a dataset one row at a time.
type StreamingParser struct {
	path    string
	file    *os.File
	reader  *csv.Reader
	dialect Dialect

	// raw holds decoded bytes read by reader that were not yet claimed by a
	// row; source holds the matching file bytes when the dataset is
	// transcoded.
	raw        bytes.Buffer
	source     bytes.Buffer
	transcoded bool
	claimed    int64
	pending    int

	headers   []string
	fields    []string
	line      int
	err       error
}

// NewStreamingParser opens a dataset and reads its header row.
//
// PARAMETERS:
//   - filePath: The dataset file.
//   - settings: Delimiter, encoding, quoting and lazy-quote settings.
//
// RETURNS:
//   - The parser, positioned after the header. The raw header bytes are
//     pending: call PassThrough or Discard before the first Next, or Next
//     drops them.
//   - An error if the file cannot be opened or has no header row.
func NewStreamingParser(filePath string, settings config.DatasetSettings) (*StreamingParser, error) {
	comma, err := settings.Comma()
	if err != nil {
		return nil, err
	}
	enc, err := lookupEncoding(settings.Encoding)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	p := &StreamingParser{
		path:       filePath,
		file:       file,
		dialect:    Dialect{Comma: comma},
		transcoded: enc != nil,
	}

	var in io.Reader = bufio.NewReaderSize(file, readBufferSize)
	if p.transcoded {
		in = io.TeeReader(in, &p.source)
	}
	src := bufio.NewReaderSize(decode(in, enc), 64*1024)

	// A byte order mark belongs to the raw header bytes but not to the
	// first header name.
	if bom, _ := src.Peek(len(utf8BOM)); string(bom) == utf8BOM {
		src.Discard(len(utf8BOM))
		p.raw.WriteString(utf8BOM)
		p.claimed = -int64(len(utf8BOM))
	}

	p.reader = csv.NewReader(io.TeeReader(src, &p.raw))
	p.reader.Comma = comma
	p.reader.LazyQuotes = settings.LazyQuotes
	p.reader.FieldsPerRecord = 0
	p.reader.ReuseRecord = false

	if err := p.readHeaders(settings.Quoting); err != nil {
		file.Close()
		return nil, err
	}

	return p, nil
}

// readHeaders reads the header row and detects the dialect from its bytes.
func (p *StreamingParser) readHeaders(quoting string) error {
	row, err := p.reader.Read()
	if err == io.EOF {
		return &types.SourceError{Path: p.path, Err: errors.New("dataset is empty: no header row")}
	}
	p.track()
	if err != nil {
		return p.sourceError(row, err)
	}

	raw := bytes.TrimPrefix(p.RawRow(), []byte(utf8BOM))
	p.dialect.CRLF = bytes.HasSuffix(raw, []byte("\r\n"))

	switch quoting {
	case config.QuotingAlways:
		p.dialect.QuoteAll = true
	case config.QuotingMinimal:
		p.dialect.QuoteAll = false
	default:
		p.dialect.QuoteAll = len(raw) > 0 && raw[0] == '"'
	}

	p.headers = cleanHeaders(row)
	p.line = 1
	return nil
}

// cleanHeaders trims whitespace around header names.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// Next advances to the next row. Returns false at the end of the dataset or
// on error (see Err). Raw bytes of the previous row that were neither passed
// through nor discarded are dropped.
func (p *StreamingParser) Next() bool {
	if p.err != nil {
		return false
	}
	p.Discard()

	row, err := p.reader.Read()
	if err == io.EOF {
		// Trailing bytes after the last row (blank lines) stay pending.
		p.pending = p.raw.Len()
		return false
	}
	p.track()
	if err != nil {
		p.err = p.sourceError(row, err)
		return false
	}

	p.fields = row
	p.line, _ = p.reader.FieldPos(0)
	return true
}

// track marks the bytes read since the previous row as pending.
func (p *StreamingParser) track() {
	offset := p.reader.InputOffset()
	p.pending = int(offset - p.claimed)
	p.claimed = offset
}

// sourceError builds a structural error for the current position.
func (p *StreamingParser) sourceError(row []string, err error) error {
	line := p.line + 1
	content := string(bytes.TrimRight(p.RawRow(), "\r\n"))

	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		line = parseErr.StartLine
		if errors.Is(parseErr.Err, csv.ErrFieldCount) && row != nil {
			content = strings.Join(row, string(p.dialect.Comma))
		}
	}

	if len(content) > maxErrorContent {
		content = content[:maxErrorContent] + "..."
	}
	return &types.SourceError{Path: p.path, Line: line, Content: content, Err: err}
}

// =============================================================================
// RAW BYTES
// =============================================================================

// RawRow returns the raw bytes of the current row, decoded to UTF-8, valid
// until the next call that moves the parser.
func (p *StreamingParser) RawRow() []byte {
	return p.raw.Bytes()[:p.pending]
}

// claim removes the current row from the buffers and returns its bytes as
// they appear in the file.
func (p *StreamingParser) claim() []byte {
	decoded := p.raw.Next(p.pending)
	p.pending = 0
	if !p.transcoded {
		return decoded
	}
	return p.source.Next(utf8.RuneCount(decoded))
}

// PassThrough writes the file bytes of the current row to w.
func (p *StreamingParser) PassThrough(w io.Writer) error {
	if _, err := w.Write(p.claim()); err != nil {
		return fmt.Errorf("failed to copy row %d: %w", p.line, err)
	}
	return nil
}

// Discard drops the raw bytes of the current row.
func (p *StreamingParser) Discard() {
	p.claim()
}

// Replace writes fields in place of the current row. Blank lines that
// preceded the row in the input are kept.
//
// The CSV reader turns "\r\n" inside quoted fields into "\n". When the row
// held such line breaks, they are written back as "\r\n".
func (p *StreamingParser) Replace(w *Writer, fields []string) error {
	raw := p.claim()
	lead := len(raw) - len(bytes.TrimLeft(raw, "\r\n"))
	if lead > 0 {
		if _, err := w.Write(raw[:lead]); err != nil {
			return fmt.Errorf("failed to copy row %d: %w", p.line, err)
		}
	}

	body := bytes.TrimRight(raw[lead:], "\r\n")
	if bytes.Contains(body, []byte("\r\n")) {
		fields = restoreCRLF(fields)
	}
	return w.WriteRecord(fields)
}

// restoreCRLF returns a copy of fields with every "\n" written as "\r\n".
func restoreCRLF(fields []string) []string {
	restored := make([]string, len(fields))
	for i, field := range fields {
		if strings.Contains(field, "\n") {
			field = strings.ReplaceAll(strings.ReplaceAll(field, "\r\n", "\n"), "\n", "\r\n")
		}
		restored[i] = field
	}
	return restored
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Headers returns the cleaned header row.
func (p *StreamingParser) Headers() []string {
	return p.headers
}

// Fields returns the fields of the current row. The slice is owned by the
// caller; the parser never reuses it.
func (p *StreamingParser) Fields() []string {
	return p.fields
}

// Record wraps the current row for schema-based access.
func (p *StreamingParser) Record(schema *types.Schema) *types.Record {
	return types.NewRecord(schema, p.fields, p.line)
}

// Line returns the 1-indexed line where the current row starts.
func (p *StreamingParser) Line() int {
	return p.line
}

// Dialect returns the dialect detected on the header row.
func (p *StreamingParser) Dialect() Dialect {
	return p.dialect
}

// Err returns the error that stopped Next, if any.
func (p *StreamingParser) Err() error {
	return p.err
}

// Close closes the underlying file.
func (p *StreamingParser) Close() error {
	return p.file.Close()
}
