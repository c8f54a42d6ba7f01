package validator

import (
	"fmt"
	"strings"
)

const (
	maxEntityTypeLength = 64
	maxBranchLength     = 100
)

// ValidateEntityType checks a registry type name: lower-case letters, digits
// and underscores, starting with a letter.
func ValidateEntityType(name string) error {
	if name == "" {
		return fmt.Errorf("entity type cannot be empty")
	}
	if len(name) > maxEntityTypeLength {
		return fmt.Errorf("entity type %q exceeds %d characters", name, maxEntityTypeLength)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_'):
		default:
			return fmt.Errorf("entity type %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// ValidateBranchName checks a branch name. Names are path-like segments
// separated by '/', each made of letters, digits, '-', '_' or '.'.
func ValidateBranchName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if len(name) > maxBranchLength {
		return fmt.Errorf("branch name %q exceeds %d characters", name, maxBranchLength)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" {
			return fmt.Errorf("branch name %q contains an empty segment", name)
		}
		if segment == "." || segment == ".." || strings.HasPrefix(segment, ".") {
			return fmt.Errorf("branch name %q contains invalid segment %q", name, segment)
		}
		for _, r := range segment {
			if !isBranchRune(r) {
				return fmt.Errorf("branch name %q contains invalid character %q", name, r)
			}
		}
	}
	return nil
}

func isBranchRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
