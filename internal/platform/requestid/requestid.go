// Package requestid generates and screens X-Request-Id values.
package requestid

import (
	"strings"

	"github.com/google/uuid"
)

// MaxLen bounds caller-supplied ids accepted by Valid.
const MaxLen = 128

// New returns a random 32-character lowercase hex id.
func New() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// Valid reports whether a caller-supplied id is safe to echo into headers,
// logs and audit rows: non-empty, at most MaxLen bytes of printable ASCII
// without spaces.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
