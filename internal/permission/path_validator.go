package permission

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// PathValidator keeps file access inside a set of directories.
type PathValidator struct {
	allowedDirs []string
}

func NewPathValidator(allowedDirs []string) PathValidator {
	cleaned := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		cleaned = append(cleaned, filepath.Clean(dir))
	}
	return PathValidator{allowedDirs: cleaned}
}

// Unrestricted reports whether no directories were configured.
func (v PathValidator) Unrestricted() bool {
	return len(v.allowedDirs) == 0
}

func (v PathValidator) IsAllowed(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cleanPath := filepath.Clean(path)
	for _, allowed := range v.allowedDirs {
		if cleanPath == allowed || strings.HasPrefix(cleanPath, allowed+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// SafeName reduces a backend-supplied filename to a bare file name. Empty,
// dot and hidden names yield "".
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

// Resolve joins a download filename onto dir, refusing names that would land
// outside it.
func Resolve(dir, filename string) (string, error) {
	name := SafeName(filename)
	if name == "" {
		return "", errors.Errorf("unsafe download filename %q", filename)
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolving download dir %s", dir)
	}
	full := filepath.Join(base, name)
	if !NewPathValidator([]string{base}).IsAllowed(full) {
		return "", errors.Errorf("download %q escapes %s", filename, base)
	}
	return full, nil
}
