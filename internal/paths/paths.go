// package paths confines filesystem access to a configured set of root directories.
//
// Every path argument that reaches the render pipeline is canonicalized and
// checked for ancestry against the permitted roots. Rejections never echo the
// offending absolute path back to the caller.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/motifd/internal/shared"
)

// Guard validates requested paths against a fixed set of permitted roots.
type Guard struct {
	roots []string
}

// NewGuard canonicalizes the given root directories and returns a Guard.
// Roots are created if missing so symlink resolution has something to resolve.
func NewGuard(roots ...string) (*Guard, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: at least one permitted root is required", shared.ErrInvalidConfig)
	}

	canonical := make([]string, 0, len(roots))
	for _, root := range roots {
		if _, err := shared.EnsureDirectory(root); err != nil {
			return nil, fmt.Errorf("failed to create root directory: %w", err)
		}
		resolved, err := canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize root: %w", err)
		}
		canonical = append(canonical, resolved)
	}

	return &Guard{roots: canonical}, nil
}

// Roots returns the canonical permitted roots.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Resolve canonicalizes requested and verifies it lies under one of the
// permitted roots. Returns the canonical absolute path on success.
//
// The ancestry check is component-wise via filepath.Rel, never a textual
// prefix comparison, so a sibling like "outputs_backup" can not spoof
// an "outputs" root.
func (g *Guard) Resolve(requested string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", fmt.Errorf("%w: empty path", shared.ErrValidation)
	}

	resolved, err := canonicalize(requested)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: referenced input does not exist", shared.ErrNotFound)
		}
		return "", fmt.Errorf("%w: path could not be resolved", shared.ErrValidation)
	}

	for _, root := range g.roots {
		if isDescendant(root, resolved) {
			return resolved, nil
		}
	}

	// Deliberately omits the rejected path from the message.
	return "", fmt.Errorf("%w: path outside permitted directories", shared.ErrValidation)
}

// ResolveFile is Resolve plus a check that the result is a regular file.
func (g *Guard) ResolveFile(requested string) (string, error) {
	resolved, err := g.Resolve(requested)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: referenced input does not exist", shared.ErrNotFound)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: path must be a file", shared.ErrValidation)
	}

	return resolved, nil
}

// canonicalize makes p absolute and resolves ".", ".." and symlinks.
// The final component may not exist yet; in that case its parent is
// resolved and the base name re-joined.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}

// isDescendant reports whether path equals root or sits beneath it,
// comparing path components rather than string prefixes.
func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
