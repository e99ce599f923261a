// slug.go derives URL-safe organization slugs from display names and validates slugs
// supplied explicitly by callers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinSlugLength is the shortest explicit slug accepted
	MinSlugLength = 2
	// MaxSlugLength caps both derived and explicit slugs
	MaxSlugLength = 64
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lower-cases name and collapses every run of characters outside [a-z0-9] into a
// single hyphen. The result may be empty when name has no usable characters.
func Slugify(name string) string {
	s := slugSeparator.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	return s
}

// ValidateSlug checks an explicitly supplied slug
func ValidateSlug(slug string) error {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return fmt.Errorf("slug must be between %d and %d characters", MinSlugLength, MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug may only contain lowercase letters, digits and single hyphens")
	}
	return nil
}

// SlugWithSuffix appends -n to base, trimming base so the result stays within MaxSlugLength
func SlugWithSuffix(base string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(base)+len(suffix) > MaxSlugLength {
		base = strings.TrimRight(base[:MaxSlugLength-len(suffix)], "-")
	}
	return base + suffix
}
