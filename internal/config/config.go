// =============================================================================
// CTe/NFe Enricher - Configuration Module
// =============================================================================
//
// This module loads the YAML configuration of the enricher. Every setting
// has a default, so the configuration file is optional: a missing file at
// the default path means "use the defaults".
//
// EXAMPLE (enricher.yaml):
//
//   dataset:
//     delimiter: ";"
//     encoding: "ISO-8859-1"
//     columns:
//       valor_item: "Valor do Item"
//   relations:
//     invoices_file: "cte_nfes.txt"
//   enrichment:
//     max_char: 3000
//     max_info: 10
//   processing:
//     workers: 8
//   log_level: "debug"
//
// Command-line flags override the loaded values (see cmd/enrich.go).
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "enricher.yaml"

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole enricher configuration.
type Config struct {
	Dataset    DatasetSettings    `yaml:"dataset"`
	Relations  RelationSettings   `yaml:"relations"`
	Enrichment EnrichmentSettings `yaml:"enrichment"`
	Processing ProcessingSettings `yaml:"processing"`
	Output     OutputSettings     `yaml:"output"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "trace", "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the log encoding: "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// MetricsFile, when set, receives the run metrics in the Prometheus
	// textfile format after each run.
	MetricsFile string `yaml:"metrics_file"`
}

// DatasetSettings describes the delimited dataset.
type DatasetSettings struct {
	// Delimiter separates fields. Aliases "tab", "pipe" and "semicolon" are
	// accepted.
	// Default: ";"
	Delimiter string `yaml:"delimiter"`

	// Encoding of the dataset: "UTF-8", "ISO-8859-1" or "Windows-1252".
	// The output is written in the same encoding.
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`

	// LazyQuotes tolerates stray quotes inside fields.
	// Default: true
	LazyQuotes bool `yaml:"lazy_quotes"`

	// Quoting controls how rewritten rows are quoted:
	//   auto    - same as the header row of the input
	//   always  - every field is quoted
	//   minimal - only fields that need it
	// Default: "auto"
	Quoting string `yaml:"quoting"`

	// ColumnsTemplate is an optional XLSX workbook mapping logical fields to
	// column headers (see "enricher columns export").
	ColumnsTemplate string `yaml:"columns_template"`

	// Columns overrides column headers inline: field id -> header.
	// Applied after ColumnsTemplate.
	Columns map[string]string `yaml:"columns"`
}

// RelationSettings names the relationship files. Relative paths are
// resolved against the directory of the dataset.
type RelationSettings struct {
	// Default: "cte_nfes.txt"
	InvoicesFile string `yaml:"invoices_file"`

	// Default: "transporte_subcontratado-chaves_complementares_dos_CTes.txt"
	ComplementsFile string `yaml:"complements_file"`
}

// EnrichmentSettings bounds what is injected into each row.
type EnrichmentSettings struct {
	// MaxChar is the rune length an enriched field must stay below.
	// Default: 3000
	MaxChar int `yaml:"max_char"`

	// MaxInfo is the number of related documents whose metadata is injected.
	// Default: 10
	MaxInfo int `yaml:"max_info"`
}

// ProcessingSettings tunes the parallel passes.
type ProcessingSettings struct {
	// Workers bounds the parsing goroutines.
	// Default: number of CPUs
	Workers int `yaml:"workers"`

	// ChunkSize is the number of rows or lines per worker task.
	// Default: 4096
	ChunkSize int `yaml:"chunk_size"`
}

// OutputSettings controls where the enriched dataset goes.
type OutputSettings struct {
	// Suffix replaces the extension of the input file.
	// Default: "modificado.csv"
	Suffix string `yaml:"suffix"`

	// UpdateSource replaces the input file with the enriched one.
	// Default: false
	UpdateSource bool `yaml:"update_source"`

	// KeepUnchanged keeps the output even when no row was enriched.
	// Default: false
	KeepUnchanged bool `yaml:"keep_unchanged"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns a configuration holding every default value.
func Default() *Config {
	cfg := &Config{
		Dataset: DatasetSettings{
			Delimiter:  ";",
			Encoding:   "UTF-8",
			LazyQuotes: true,
			Quoting:    QuotingAuto,
		},
		Relations: RelationSettings{
			InvoicesFile:    "cte_nfes.txt",
			ComplementsFile: "transporte_subcontratado-chaves_complementares_dos_CTes.txt",
		},
		Enrichment: EnrichmentSettings{
			MaxChar: 3000,
			MaxInfo: 10,
		},
		Output: OutputSettings{
			Suffix: "modificado.csv",
		},
	}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads the configuration file at configPath on top of the
// defaults.
//
// PARAMETERS:
//   - configPath: The YAML file. An empty path, or a missing file at
//     DefaultPath, yields the defaults.
//
// RETURNS:
//   - The validated configuration.
//   - An error if the file cannot be read, parsed or validated.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && configPath == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills settings left empty or zero by the file.
func applyDefaults(cfg *Config) {
	if cfg.Dataset.Delimiter == "" {
		cfg.Dataset.Delimiter = ";"
	}
	if cfg.Dataset.Encoding == "" {
		cfg.Dataset.Encoding = "UTF-8"
	}
	if cfg.Dataset.Quoting == "" {
		cfg.Dataset.Quoting = QuotingAuto
	}
	if cfg.Relations.InvoicesFile == "" {
		cfg.Relations.InvoicesFile = "cte_nfes.txt"
	}
	if cfg.Relations.ComplementsFile == "" {
		cfg.Relations.ComplementsFile = "transporte_subcontratado-chaves_complementares_dos_CTes.txt"
	}
	if cfg.Processing.Workers <= 0 {
		cfg.Processing.Workers = runtime.NumCPU()
	}
	if cfg.Processing.ChunkSize <= 0 {
		cfg.Processing.ChunkSize = 4096
	}
	if cfg.Output.Suffix == "" {
		cfg.Output.Suffix = "modificado.csv"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Quoting styles for rewritten rows.
const (
	QuotingAuto    = "auto"
	QuotingAlways  = "always"
	QuotingMinimal = "minimal"
)

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if _, err := c.Dataset.Comma(); err != nil {
		problems = append(problems, err.Error())
	}
	if !SupportedEncoding(c.Dataset.Encoding) {
		problems = append(problems, fmt.Sprintf("unsupported encoding %q", c.Dataset.Encoding))
	}
	switch c.Dataset.Quoting {
	case QuotingAuto, QuotingAlways, QuotingMinimal:
	default:
		problems = append(problems, fmt.Sprintf("quoting must be auto, always or minimal, got %q", c.Dataset.Quoting))
	}
	if _, err := c.Dataset.HeaderOverrides(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Enrichment.MaxChar <= 0 {
		problems = append(problems, "enrichment.max_char must be positive")
	}
	if c.Enrichment.MaxInfo < 0 {
		problems = append(problems, "enrichment.max_info must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Comma resolves the delimiter setting to a single rune.
func (d DatasetSettings) Comma() (rune, error) {
	switch d.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		return '\t', nil
	case "|", "pipe", "PIPE":
		return '|', nil
	case ";", "semicolon":
		return ';', nil
	case ",", "comma":
		return ',', nil
	}

	r := []rune(d.Delimiter)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", d.Delimiter)
	}
	return r[0], nil
}

// HeaderOverrides resolves the inline column overrides by field.
func (d DatasetSettings) HeaderOverrides() (map[types.Field]string, error) {
	overrides := make(map[types.Field]string, len(d.Columns))
	for name, header := range d.Columns {
		f, ok := types.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown column field %q", name)
		}
		overrides[f] = strings.TrimSpace(header)
	}
	return overrides, nil
}

// SupportedEncoding reports whether name is an accepted dataset encoding.
func SupportedEncoding(name string) bool {
	switch NormalizeEncoding(name) {
	case "UTF-8", "ISO-8859-1", "WINDOWS-1252":
		return true
	}
	return false
}

// NormalizeEncoding maps encoding aliases to their canonical name.
func NormalizeEncoding(name string) string {
	switch n := strings.ToUpper(strings.TrimSpace(name)); n {
	case "", "UTF8", "UTF-8":
		return "UTF-8"
	case "LATIN1", "LATIN-1", "ISO8859-1", "ISO-8859-1", "ISO_8859-1":
		return "ISO-8859-1"
	case "CP1252", "WINDOWS1252", "WINDOWS-1252":
		return "WINDOWS-1252"
	default:
		return n
	}
}
