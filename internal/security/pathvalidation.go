// Package security validates filesystem paths taken from configuration
// and CLI flags before the process reads or writes through them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects file paths that resolve outside
// dir. Both sides are canonicalized first, so a symlink planted inside
// dir (a template directory entry pointing at /etc, say) cannot smuggle
// reads or writes elsewhere.
func ValidatePathWithinDirectory(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	canonDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When the path does not
// exist yet (an output file about to be created), symlinks are resolved
// in the nearest existing ancestor and the remaining components are
// re-appended, so a link in the middle of the path still counts.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	dir := absPath
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, absPath)
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
}

// ValidateExportPath accepts output paths only under the OS temp
// directory or the current working directory. Operator-supplied output
// files, like the one-shot capture target, go through this before
// anything is written.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	var lastErr error
	for _, dir := range []string{os.TempDir(), cwd} {
		if lastErr = ValidatePathWithinDirectory(path, dir); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("export path must stay under %s or %s: %w", os.TempDir(), cwd, lastErr)
}

// SanitizeFilename makes a safe filename component from an arbitrary
// string: anything outside ASCII letters, digits, dot, underscore and
// dash becomes an underscore, runs collapse to one, and the result is
// length-capped. Used when run ids or labels are embedded into
// artifact file names.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
