package version

import "fmt"

// Boundaries is a set of breaking-change cutoffs. A
// cutoff B splits versions into v < B and v >= B.
type Boundaries []string

// DefaultBoundaries holds the single historical cutoff.
func DefaultBoundaries() Boundaries {
	return Boundaries{DefaultBoundary}
}

// Validate checks every cutoff is a semantic version.
func (b Boundaries) Validate() error {
	for _, cutoff := range b {
		if !IsValid(cutoff) {
			return fmt.Errorf("breaking boundary: %w: %q", ErrInvalidVersion, cutoff)
		}
	}
	return nil
}

// Straddled returns the first cutoff with producer and consumer on opposite
// sides, or "" when no cutoff separates them.
func (b Boundaries) Straddled(producer, consumer string) (string, error) {
	for _, cutoff := range b {
		p, err := AtLeast(producer, cutoff)
		if err != nil {
			return "", fmt.Errorf("producer version: %w", err)
		}
		c, err := AtLeast(consumer, cutoff)
		if err != nil {
			return "", fmt.Errorf("consumer version: %w", err)
		}
		if p != c {
			return cutoff, nil
		}
	}
	return "", nil
}
