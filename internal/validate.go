package internal

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidResolution  = errors.New("invalid resolution")
	ErrInvalidSegmentName = errors.New("invalid segment name")
)

// segmentRe matches exactly "segment_" plus three digits plus ".ts". Anything
// else, including extra path components or a different digit count, is
// rejected so that client-supplied segment names can never escape the
// rendition's output directory.
var segmentRe = regexp.MustCompile(`^segment_\d{3}\.ts$`)

// ValidateResolution returns nil iff label names a rendition in the ladder.
func ValidateResolution(label string) error {
	if !IsAllowedResolution(label) {
		return fmt.Errorf("%w: %q", ErrInvalidResolution, label)
	}
	return nil
}

// ValidateSegmentName returns nil iff name is a well-formed segment filename.
func ValidateSegmentName(name string) error {
	if !segmentRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSegmentName, name)
	}
	return nil
}
