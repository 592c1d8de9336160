// Package validation holds the input rules for namespaces, keys, and
// stored values. The limits mirror what the public API documents: short
// lowercase namespace names, restricted key alphabets, and a hard cap on
// value size.
package validation

import (
	"encoding/json"
	"regexp"

	"github.com/vberkoz/kvgate/pkg/apierr"
)

// MaxValueBytes is the serialized-size ceiling for a stored JSON value.
const MaxValueBytes = 400 * 1024

const (
	maxNamespaceLen = 50
	maxKeyLen       = 255
	minCredNameLen  = 3
)

var (
	namespaceRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	keyRe       = regexp.MustCompile(`^[a-zA-Z0-9:_.-]+$`)
)

// Namespace validates a namespace name: 1-50 chars of lowercase letters,
// digits, and hyphens.
func Namespace(name string) error {
	if name == "" {
		return apierr.Validation("Namespace name is required")
	}
	if len(name) > maxNamespaceLen {
		return apierr.Validation("Namespace name must be 50 characters or less")
	}
	if !namespaceRe.MatchString(name) {
		return apierr.Validation("Namespace name must contain only lowercase letters, numbers, and hyphens")
	}
	return nil
}

// Key validates a record key: 1-255 chars of alphanumerics, colons,
// underscores, dots, and hyphens.
func Key(key string) error {
	if key == "" {
		return apierr.Validation("Key is required")
	}
	if len(key) > maxKeyLen {
		return apierr.Validation("Key must be 255 characters or less")
	}
	if !keyRe.MatchString(key) {
		return apierr.Validation("Key must contain only alphanumeric characters, colons, underscores, dots, and hyphens")
	}
	return nil
}

// Value validates a stored value and returns its serialized size so
// callers can meter it without re-marshaling. An absent value is
// rejected here: a nil RawMessage would otherwise marshal to "null" and
// slip through as a four-byte record.
func Value(value any) (int, error) {
	if raw, ok := value.(json.RawMessage); ok && len(raw) == 0 {
		return 0, apierr.Validation("Value is required")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return 0, apierr.Validation("Value must be valid JSON")
	}
	if len(data) > MaxValueBytes {
		return 0, apierr.Validation("Value size must not exceed 400KB")
	}
	return len(data), nil
}

// CredentialName validates the display name on an issued credential.
func CredentialName(name string) error {
	if len(name) < minCredNameLen {
		return apierr.Validation("API key name must be at least 3 characters")
	}
	return nil
}
