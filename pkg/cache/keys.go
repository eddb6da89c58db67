package cache

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxKeyLength bounds cache keys; filter keys embed free-text locations.
const MaxKeyLength = 512

// ValidateKey checks if a cache key is valid.
// Returns nil if the key is valid, or an error describing the problem.
//
// Rules:
// - Non-empty string
// - Maximum length of MaxKeyLength bytes
// - No control characters
// - No leading or trailing whitespace
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// KeyPattern represents a pattern for generating cache keys.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a new key pattern with the given prefix and separator.
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = "_"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build creates a cache key from the pattern and provided parts.
// Example: details.Build("ChIJ123") -> "details_ChIJ123"
func (kp *KeyPattern) Build(parts ...string) string {
	var b strings.Builder
	b.WriteString(kp.prefix)
	for _, part := range parts {
		b.WriteString(kp.separator)
		b.WriteString(part)
	}
	return b.String()
}

var (
	detailsKeys = NewKeyPattern("details", "_")
	filterKeys  = NewKeyPattern("filter", "_")
)

// DetailsKey returns the business-detail cache key for a place identifier.
func DetailsKey(placeID string) string {
	return detailsKeys.Build(placeID)
}

// FilterKey serializes a category/filter/location/radius tuple into a
// recommendations cache key. Parts are normalized so that cosmetic differences
// in casing and spacing map to the same key.
func FilterKey(category, filter, location string, radius int) string {
	return filterKeys.Build(
		normalizePart(category),
		normalizePart(filter),
		normalizePart(location),
		strconv.Itoa(radius),
	)
}

func normalizePart(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, "-")
}
