package security

import "unicode"

const MinPasswordLength = 8

// Strength is the result of ValidateStrength. Score is advisory (0-5) and rewards a
// special character; Valid only requires length, lower, upper and digit.
type Strength struct {
	Valid   bool
	Score   int
	Reasons []string
}

func ValidateStrength(password string) Strength {
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	longEnough := length >= MinPasswordLength

	var result Strength
	if longEnough {
		result.Score++
	} else {
		result.Reasons = append(result.Reasons, "password must be at least 8 characters long")
	}
	if hasLower {
		result.Score++
	} else {
		result.Reasons = append(result.Reasons, "password must contain a lowercase letter")
	}
	if hasUpper {
		result.Score++
	} else {
		result.Reasons = append(result.Reasons, "password must contain an uppercase letter")
	}
	if hasDigit {
		result.Score++
	} else {
		result.Reasons = append(result.Reasons, "password must contain a digit")
	}
	if hasSpecial {
		result.Score++
	}

	result.Valid = longEnough && hasLower && hasUpper && hasDigit
	return result
}
