// =============================================================================
// CTe/NFe Enricher - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (enricher)
//   ├── enrichCmd    (enricher enrich)
//   ├── summarizeCmd (enricher summarize)
//   ├── columnsCmd   (enricher columns export)
//   └── versionCmd   (enricher version)
//
// CONFIGURATION:
//   Before any subcommand runs, the root command:
//   1. Loads the YAML configuration (--config)
//   2. Sets up logging from the configuration and --verbose
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// cfg is the configuration loaded before a subcommand runs.
var cfg *config.Config

// log is the application logger.
var log = logrus.New()

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "enricher",
	Short: "CTe/NFe enricher - Cross-link freight and goods invoices in fiscal exports",
	Long: `The enricher reads a fiscal dataset export holding item rows of CT-e
(freight) and NF-e (goods) documents, and annotates every row with the related
documents of the other kind: a cross-reference of their keys and total value,
plus the metadata of the most valuable ones.

Relations come from two text files next to the dataset:
  cte_nfes.txt                                               CT-e -> NF-es
  transporte_subcontratado-chaves_complementares_dos_CTes.txt CT-e <-> CT-e

Example Usage:
  enricher enrich -d Info.csv                 # Write Info.modificado.csv
  enricher enrich -d Info.csv --update-source # Rewrite Info.csv in place
  enricher summarize -d Info.csv --top 20     # Show the largest documents`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultPath,
		"Path to the configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// initConfig loads the configuration and sets up logging.
func initConfig() error {
	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	return setupLogging()
}

// setupLogging applies the log settings of cfg to log.
func setupLogging() error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
