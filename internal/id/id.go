package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random job identifier without dashes, safe for object keys
// and file names.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
