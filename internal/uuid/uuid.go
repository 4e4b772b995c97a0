// Package uuid generates and validates the UUID v4 identifiers used for
// queued operations and cached snapshot rows.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Matches the canonical dashed form only, with the version nibble fixed to 4
// and the variant nibble restricted to [89abAB].
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New returns a fresh UUID v4 in canonical string form.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a canonical UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns a descriptive error for anything IsValid rejects.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}
