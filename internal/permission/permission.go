package permission

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
)

// SourceChecker decides whether a submission source may be used. Local files
// must sit inside the allowed directories when any are configured.
type SourceChecker struct {
	PathValidator
}

func NewSourceChecker(allowedDirs []string) *SourceChecker {
	return &SourceChecker{PathValidator: NewPathValidator(allowedDirs)}
}

// Check returns whether value is acceptable for mode, with a reason when not.
func (c *SourceChecker) Check(mode core.InputMode, value string) (allow bool, reason string) {
	switch mode {
	case core.ModeFile:
		if c.Unrestricted() || c.IsAllowed(value) {
			return true, ""
		}
		return false, fmt.Sprintf("path %s is outside allowed directories", value)

	case core.ModeURL:
		u, err := url.Parse(strings.TrimSpace(value))
		if err != nil {
			return false, "invalid url"
		}
		// QR codes encode arbitrary text, so only local schemes are refused
		switch strings.ToLower(u.Scheme) {
		case "file", "javascript", "data":
			return false, fmt.Sprintf("unsupported url scheme %q", u.Scheme)
		case "http", "https":
			if u.Host == "" {
				return false, "url has no host"
			}
		}
		return true, ""

	case core.ModeJSON:
		return true, ""
	}
	return false, "no input source"
}
