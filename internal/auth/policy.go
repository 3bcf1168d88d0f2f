package auth

import (
	"fmt"
	"strings"
)

// SpecialCharacters is the set a password must draw at least one character from.
const SpecialCharacters = "@$!%*?&"

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

const (
	ViolationLength     = "password_length"
	ViolationComplexity = "password_complexity"
	ViolationWeak       = "password_weak"
)

type PolicyViolation struct {
	Code        string
	Message     string
	Suggestions []string
}

func (v *PolicyViolation) Error() string {
	return v.Message
}

type Strength struct {
	Score       int
	Suggestions []string
}

// StrengthScorer rates a password from 0 (guessable) to 4 (very strong).
type StrengthScorer interface {
	Score(password string, userInputs ...string) Strength
}

type PasswordPolicy struct {
	MinLength int
	MaxLength int
	MinScore  int
	Scorer    StrengthScorer
}

// Validate applies the full registration policy: length bounds, character
// classes and a minimum strength score.
func (p PasswordPolicy) Validate(password string, userInputs ...string) error {
	n := len([]rune(password))
	if n < p.MinLength || n > p.maxLength() || len(password) > MaxPasswordBytes {
		return &PolicyViolation{
			Code:    ViolationLength,
			Message: fmt.Sprintf("Password must be between %d and %d characters.", p.MinLength, p.maxLength()),
		}
	}

	if !hasRequiredClasses(password) {
		return &PolicyViolation{
			Code:    ViolationComplexity,
			Message: "Password must contain at least one uppercase, one lowercase, one number, and one special character (" + SpecialCharacters + "), and no other characters.",
		}
	}

	if p.Scorer != nil {
		strength := p.Scorer.Score(password, userInputs...)
		if strength.Score < p.MinScore {
			return &PolicyViolation{
				Code:        ViolationWeak,
				Message:     "Password is too weak. Please choose a stronger one.",
				Suggestions: strength.Suggestions,
			}
		}
	}

	return nil
}

// ValidateMinLength is the reduced rule applied on reset and change.
func (p PasswordPolicy) ValidateMinLength(password string) error {
	if len([]rune(password)) < p.MinLength {
		return &PolicyViolation{
			Code:    ViolationLength,
			Message: fmt.Sprintf("New password must be at least %d characters.", p.MinLength),
		}
	}
	if len(password) > MaxPasswordBytes {
		return &PolicyViolation{
			Code:    ViolationLength,
			Message: fmt.Sprintf("New password must be at most %d characters.", p.maxLength()),
		}
	}
	return nil
}

// maxLength is MaxLength capped at what bcrypt can hash.
func (p PasswordPolicy) maxLength() int {
	if p.MaxLength <= 0 || p.MaxLength > MaxPasswordBytes {
		return MaxPasswordBytes
	}
	return p.MaxLength
}

// hasRequiredClasses needs one lowercase letter, one uppercase letter, one
// digit and one of SpecialCharacters, and rejects anything outside those sets.
func hasRequiredClasses(password string) bool {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(SpecialCharacters, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}
