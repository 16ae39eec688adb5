// =============================================================================
// CTe/NFe Enricher - File Manager Utility
// =============================================================================
//
// This module provides the file bookkeeping around an enrichment run:
//   - Output file naming
//   - Temporary output files
//   - Committing, replacing and removing files
//
// OUTPUT STRATEGY:
//   - The enriched dataset is written to a temporary file next to the final
//     output, so a failed run never leaves a truncated output behind
//   - A run that changed nothing removes its output
//   - With update_source, the enriched dataset replaces the input
//   - Renames fall back to copy and delete across devices
//
// =============================================================================

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// OutputPath returns the path of the enriched dataset for input: the
// extension of input is replaced by suffix.
//
// EXAMPLE:
//
//	OutputPath("dados/Info.csv", "modificado.csv") -> "dados/Info.modificado.csv"
func OutputPath(input, suffix string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	return base + "." + strings.TrimPrefix(suffix, ".")
}

// TempOutputPath returns a unique temporary path in the directory of output.
func TempOutputPath(output string) string {
	dir, name := filepath.Split(output)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", name, uuid.New().String()))
}

// NewRunID returns a random identifier for one run, used to correlate logs.
func NewRunID() string {
	return uuid.New().String()
}

// ResolvePath resolves path against the directory of base when it is
// relative.
func ResolvePath(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(base), path)
}

// =============================================================================
// COMMIT AND REPLACE
// =============================================================================

// CommitFile moves the finished temporary file tmp to final, replacing
// final if it exists.
func CommitFile(tmp, final string) error {
	if err := moveFile(tmp, final); err != nil {
		return fmt.Errorf("failed to commit %s: %w", final, err)
	}
	return nil
}

// ReplaceFile replaces dst with src. src no longer exists afterwards.
func ReplaceFile(src, dst string) error {
	if err := moveFile(src, dst); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dst, err)
	}
	return nil
}

// RemoveFile removes path. A missing file is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and delete when the
// rename fails (e.g., cross-device).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove original file: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
