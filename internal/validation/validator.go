// =============================================================================
// CTe/NFe Enricher - Header Validation
// =============================================================================
//
// This module checks the header row of a dataset before any row is read. The
// enricher addresses columns by name, so a dataset whose header is missing a
// required column, or names a required column twice, cannot be enriched.
//
// VALIDATION RULES:
//   - missing:   a required column is absent (error)
//   - ambiguous: a required column appears more than once (error)
//   - duplicate: any other column name appears more than once (warning)
//   - empty:     a column has an empty name (warning)
//
// ERROR HANDLING:
//   - Problems are collected, not returned one at a time
//   - Each problem names the column and its 1-indexed position
//   - Warnings never stop processing
//
// =============================================================================

package validation

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single problem found in the header.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Field is the logical field involved, if any.
	Field string

	// Column is the header name involved.
	Column string

	// Position is the 1-indexed column position, or 0 when the column is
	// absent.
	Position int

	// Rule is the validation rule that was violated.
	Rule string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(e.Severity), e.Message)
	if e.Position > 0 {
		fmt.Fprintf(&b, " (column %d)", e.Position)
	}
	return b.String()
}

// HeaderError reports a header that failed validation. It carries the full
// Result so callers can write a report.
type HeaderError struct {
	Result *Result
}

func (e *HeaderError) Error() string {
	return "invalid header:\n" + FormatErrors(e.Result.Errors)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Result contains the outcome of a header validation.
type Result struct {
	// Path is the dataset the header was read from.
	Path string

	// IsValid is true if there are no errors.
	IsValid bool

	// Errors contains all problems, warnings included, in column order.
	Errors []*ValidationError

	// ErrorCount is the number of errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// ColumnsValidated is the number of columns in the header.
	ColumnsValidated int
}

func (r *Result) add(err *ValidationError) {
	r.Errors = append(r.Errors, err)
	if err.Severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
	} else {
		r.WarningCount++
	}
}

// Err returns nil when the header is valid, or an error listing every
// problem otherwise.
func (r *Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &types.SourceError{
		Path: r.Path,
		Line: 1,
		Err:  &HeaderError{Result: r},
	}
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// ValidateHeader checks a header row against the columns the enricher needs.
//
// PARAMETERS:
//   - path: The dataset path, used in error reports.
//   - header: The header row, already trimmed.
//   - headers: Field -> column name overrides (nil for the defaults).
//
// RETURNS:
//   - A Result with every problem found.
func ValidateHeader(path string, header []string, headers map[types.Field]string) *Result {
	names := types.DefaultHeaders()
	for f, name := range headers {
		names[f] = name
	}
	required := make(map[string]types.Field, len(names))
	for f, name := range names {
		required[name] = f
	}

	result := &Result{Path: path, IsValid: true, ColumnsValidated: len(header)}

	positions := make(map[string][]int, len(header))
	for i, name := range header {
		if name == "" {
			result.add(&ValidationError{
				Severity: SeverityWarning,
				Position: i + 1,
				Rule:     "empty",
				Message:  "column has an empty name",
			})
			continue
		}
		positions[name] = append(positions[name], i+1)
	}

	for i, name := range header {
		seen := positions[name]
		if name == "" || len(seen) < 2 || seen[0] != i+1 {
			continue
		}
		if f, ok := required[name]; ok {
			result.add(&ValidationError{
				Severity: SeverityError,
				Field:    f.String(),
				Column:   name,
				Position: seen[1],
				Rule:     "ambiguous",
				Message:  fmt.Sprintf("required column %q (%s) appears %d times", name, f, len(seen)),
			})
		} else {
			result.add(&ValidationError{
				Severity: SeverityWarning,
				Column:   name,
				Position: seen[1],
				Rule:     "duplicate",
				Message:  fmt.Sprintf("column %q appears %d times", name, len(seen)),
			})
		}
	}

	for _, f := range types.AllFields() {
		if _, ok := positions[names[f]]; ok {
			continue
		}
		result.add(&ValidationError{
			Severity: SeverityError,
			Field:    f.String(),
			Column:   names[f],
			Rule:     "missing",
			Message:  fmt.Sprintf("missing required column %q (%s)", names[f], f),
		})
	}

	return result
}

// ResolveSchema validates a header row and resolves it into a Schema.
// Warnings are logged; any error aborts with a *types.SourceError wrapping
// a *HeaderError.
func ResolveSchema(path string, header []string, headers map[types.Field]string, logger logrus.FieldLogger) (*types.Schema, error) {
	result := ValidateHeader(path, header, headers)
	for _, e := range result.Errors {
		if e.Severity == SeverityWarning {
			logger.WithFields(logrus.Fields{
				"path":   path,
				"rule":   e.Rule,
				"column": e.Position,
			}).Warn(e.Message)
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	schema, err := types.NewSchema(header, headers)
	if err != nil {
		return nil, &types.SourceError{Path: path, Line: 1, Err: err}
	}
	return schema, nil
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Validation completed with %d problem(s):\n", len(errors))
	for i, err := range errors {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

// WriteErrorLog writes a validation report to filePath.
func WriteErrorLog(result *Result, filePath string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Header validation of %s\n", result.Path)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Columns: %d, errors: %d, warnings: %d\n\n",
		result.ColumnsValidated, result.ErrorCount, result.WarningCount)
	b.WriteString(FormatErrors(result.Errors))

	if err := os.WriteFile(filePath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}
