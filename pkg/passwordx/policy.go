// Package passwordx validates new passwords against the local policy and a
// k-anonymity breach corpus.
package passwordx

import (
	"fmt"
	"unicode"
)

const (
	DefaultMinLength = 8
	MaxLength        = 128
)

// Policy describes which character classes a password must contain.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires at least eight characters with an upper-case letter,
// a lower-case letter and a digit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    DefaultMinLength,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// PolicyError names the first rule a password broke.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "password policy: " + e.Reason }

// Validate returns a *PolicyError when password does not satisfy p.
func (p Policy) Validate(password string) error {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultMinLength
	}

	n := len([]rune(password))
	switch {
	case n < minLen:
		return &PolicyError{Reason: fmt.Sprintf("must be at least %d characters", minLen)}
	case n > MaxLength:
		return &PolicyError{Reason: fmt.Sprintf("must be at most %d characters", MaxLength)}
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return &PolicyError{Reason: "must contain an upper-case letter"}
	case p.RequireLower && !lower:
		return &PolicyError{Reason: "must contain a lower-case letter"}
	case p.RequireDigit && !digit:
		return &PolicyError{Reason: "must contain a digit"}
	case p.RequireSymbol && !symbol:
		return &PolicyError{Reason: "must contain a symbol"}
	}
	return nil
}
