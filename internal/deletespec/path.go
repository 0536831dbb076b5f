package deletespec

import (
	"fmt"
	"strings"

	"github.com/animus-labs/cascade/internal/specvalidator"
)

const (
	pathSeparator = "/"
	// selfPath addresses a Specification's own root type.
	selfPath = "."
)

// splitPath breaks "Pixels/Channel" into its segments. Leading and trailing
// separators are ignored; "." and "" yield no segments.
func splitPath(p string) ([]string, error) {
	p = strings.Trim(strings.TrimSpace(p), pathSeparator)
	if p == "" || p == selfPath {
		return nil, nil
	}
	parts := strings.Split(p, pathSeparator)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("path %q has an empty segment", p)
		}
		if !specvalidator.ValidIdentifier(part) {
			return nil, fmt.Errorf("path %q segment %q is not a valid type name", p, part)
		}
		parts[i] = part
	}
	return parts, nil
}

func joinPath(parts []string) string {
	return strings.Join(parts, pathSeparator)
}

func rootAlias(i int) string {
	return fmt.Sprintf("ROOT%d", i)
}
