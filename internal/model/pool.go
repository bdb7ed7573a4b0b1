package model

import (
	"fmt"
	"regexp"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidatePool checks the structural invariants of a profile pool: at least one
// profile, non-empty names unique within the pool, and 4-digit pins.
func ValidatePool(profiles []Profile) error {
	if len(profiles) == 0 {
		return fmt.Errorf("%w: pool is empty", ErrInvalidPoolState)
	}
	seen := make(map[string]struct{}, len(profiles))
	for i, p := range profiles {
		if p.Name == "" {
			return fmt.Errorf("%w: profile %d has no name", ErrInvalidPoolState, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate profile name %q", ErrInvalidPoolState, p.Name)
		}
		seen[p.Name] = struct{}{}
		if !pinPattern.MatchString(p.Pin) {
			return fmt.Errorf("%w: profile %q has malformed pin", ErrInvalidPoolState, p.Name)
		}
	}
	return nil
}
