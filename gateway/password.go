// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strings"
	"unicode"
)

// Password strength rule messages, reported in rule order.
const (
	passwordRuleLength  = "password must be between 6 and 128 characters"
	passwordRuleLower   = "password must contain a lowercase letter"
	passwordRuleUpper   = "password must contain an uppercase letter"
	passwordRuleDigit   = "password must contain a number"
	passwordRuleSpecial = "password must contain a special character"
)

// PasswordStrength is the result of checking a candidate password.
// Score counts satisfied rules (0..5).
type PasswordStrength struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	Score      int      `json:"score"`
}

// CheckPasswordStrength applies the registration password policy: length
// 6-128 plus lowercase, uppercase, digit, and special character presence.
// Pure function; used only at registration.
func CheckPasswordStrength(password string) PasswordStrength {
	var hasLower, hasUpper, hasDigit, hasSpecial bool

	for _, r := range password {
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

	length := len([]rune(password))
	rules := []struct {
		satisfied bool
		message   string
	}{
		{length >= 6 && length <= 128, passwordRuleLength},
		{hasLower, passwordRuleLower},
		{hasUpper, passwordRuleUpper},
		{hasDigit, passwordRuleDigit},
		{hasSpecial, passwordRuleSpecial},
	}

	result := PasswordStrength{Valid: true}
	for _, rule := range rules {
		if rule.satisfied {
			result.Score++
			continue
		}
		result.Valid = false
		result.Violations = append(result.Violations, rule.message)
	}
	return result
}

// describeViolations joins rule messages for log output.
func describeViolations(violations []string) string {
	return strings.Join(violations, "; ")
}
