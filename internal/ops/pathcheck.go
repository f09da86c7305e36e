package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/wardrobe/internal/config"
	"github.com/hpungsan/wardrobe/internal/errors"
)

// PathCheckMode selects the checks ValidatePath applies.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// ValidatePath confines a backup path. The path must end in .jsonl, contain
// no ".." component, and sit directly in the exports directory or one of the
// configured allowed_paths (subdirectories are refused, so only the final
// component can be swapped, and that one is opened with O_NOFOLLOW).
// AllowUnsafePaths lifts the directory rule. Symlinks are always refused.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if hasTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		dirs, err := allowedDirs(cfg)
		if err != nil {
			return err
		}
		parent := filepath.Dir(abs)
		if !slices.Contains(dirs, parent) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// DefaultExportsDir returns ~/.wardrobe/exports.
func DefaultExportsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, config.DirName, "exports"), nil
}

// allowedDirs returns the exports directory plus every absolute allowed path,
// cleaned, with symlinked entries resolved to their targets.
func allowedDirs(cfg *config.Config) ([]string, error) {
	def, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{def}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, p)
			}
		}
	}

	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = filepath.Clean(d)
		if isSymlink(d) {
			resolved, err := filepath.EvalSymlinks(d)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			d = resolved
		}
		out = append(out, d)
	}
	return out, nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// hasTraversal reports a ".." component under either separator.
func hasTraversal(path string) bool {
	split := func(r rune) bool { return r == '/' || r == filepath.Separator }
	return slices.Contains(strings.FieldsFunc(path, split), "..")
}
