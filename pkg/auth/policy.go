package auth

import (
	"fmt"
	"regexp"
	"strings"
)

// Strength buckets
const (
	StrengthWeak       = "weak"
	StrengthFair       = "fair"
	StrengthGood       = "good"
	StrengthStrong     = "strong"
	StrengthVeryStrong = "very_strong"
)

// MaxPasswordHistory bounds how many previous hashes any policy can check
const MaxPasswordHistory = 24

// SpecialChars is the set counted as special characters
const SpecialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

var (
	sequentialPattern = regexp.MustCompile(`(?i)abc|bcd|cde|def|efg|fgh|ghi|hij|ijk|jkl|klm|lmn|mno|nop|opq|pqr|qrs|rst|stu|tuv|uvw|vwx|wxy|xyz|012|123|234|345|456|567|678|789`)
	keyboardPattern   = regexp.MustCompile(`(?i)qwerty|asdf|zxcv|qazwsx|1qaz|2wsx`)
)

// PasswordPolicy is a tenant's password rule set
type PasswordPolicy struct {
	MinLength                 int  `db:"min_length" json:"min_length"`
	RequireUppercase          bool `db:"require_uppercase" json:"require_uppercase"`
	RequireLowercase          bool `db:"require_lowercase" json:"require_lowercase"`
	RequireNumbers            bool `db:"require_numbers" json:"require_numbers"`
	RequireSpecialChars       bool `db:"require_special_chars" json:"require_special_chars"`
	MinSpecialChars           int  `db:"min_special_chars" json:"min_special_chars"`
	MaxRepeatedChars          int  `db:"max_repeated_chars" json:"max_repeated_chars"`
	PreventCommonPasswords    bool `db:"prevent_common_passwords" json:"prevent_common_passwords"`
	PreventUsernameInPassword bool `db:"prevent_username_in_password" json:"prevent_username_in_password"`
	PasswordHistoryCount      int  `db:"password_history_count" json:"password_history_count"`
	MaxAgeDays                int  `db:"max_age_days" json:"max_age_days"`
}

// DefaultPasswordPolicy applies when a tenant has no policy of its own
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:                 12,
		RequireUppercase:          true,
		RequireLowercase:          true,
		RequireNumbers:            true,
		RequireSpecialChars:       true,
		MinSpecialChars:           1,
		MaxRepeatedChars:          3,
		PreventCommonPasswords:    true,
		PreventUsernameInPassword: true,
		PasswordHistoryCount:      5,
		MaxAgeDays:                90,
	}
}

// Validate rejects out-of-range policy values, naming the field
func (p PasswordPolicy) Validate() error {
	switch {
	case p.MinLength < 1 || p.MinLength > MaxPasswordLen:
		return fmt.Errorf("min_length must be between 1 and %d", MaxPasswordLen)
	case p.MinSpecialChars < 0 || p.MinSpecialChars > p.MinLength:
		return fmt.Errorf("min_special_chars must be between 0 and min_length")
	case p.MaxRepeatedChars < 0:
		return fmt.Errorf("max_repeated_chars must not be negative")
	case p.PasswordHistoryCount < 0 || p.PasswordHistoryCount > MaxPasswordHistory:
		return fmt.Errorf("password_history_count must be between 0 and %d", MaxPasswordHistory)
	case p.MaxAgeDays < 0:
		return fmt.Errorf("max_age_days must not be negative")
	}
	return nil
}

// CommonPasswordChecker reports whether a password is on a known-weak list
type CommonPasswordChecker interface {
	Contains(password string) bool
}

// ValidationResult is the outcome of checking a password against a policy
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Strength string   `json:"strength"`
	Score    int      `json:"score"`
}

// ValidatePassword scores password against policy. It performs no I/O.
// A nil checker disables the common-password rule.
func ValidatePassword(password string, policy PasswordPolicy, username string, common CommonPasswordChecker) ValidationResult {
	errs := make([]string, 0)
	score := 0
	length := len([]rune(password))

	if length < policy.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", policy.MinLength))
	} else {
		score += min(25, length*2)
	}
	if length > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("Password must be at most %d characters long", MaxPasswordLen))
	}

	hasUpper, hasLower, hasDigit, specials := classify(password)

	if policy.RequireUppercase && !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	} else if hasUpper {
		score += 10
	}

	if policy.RequireLowercase && !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	} else if hasLower {
		score += 10
	}

	if policy.RequireNumbers && !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	} else if hasDigit {
		score += 10
	}

	if policy.RequireSpecialChars && specials < policy.MinSpecialChars {
		errs = append(errs, fmt.Sprintf("Password must contain at least %d special character(s)", policy.MinSpecialChars))
	} else if specials > 0 {
		score += 15 + specials*5
	}

	if policy.MaxRepeatedChars > 0 && longestRun(password) > policy.MaxRepeatedChars {
		errs = append(errs, fmt.Sprintf("Password cannot have more than %d repeated characters", policy.MaxRepeatedChars))
	}

	if policy.PreventCommonPasswords && common != nil && common.Contains(password) {
		errs = append(errs, "Password is too common and easily guessed")
	}

	if policy.PreventUsernameInPassword && username != "" &&
		strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		errs = append(errs, "Password cannot contain your username")
	}

	if sequentialPattern.MatchString(password) {
		score -= 10
	}

	if keyboardPattern.MatchString(password) {
		errs = append(errs, "Password contains common keyboard patterns")
		score -= 15
	}

	if hasUpper && hasLower {
		score += 10
	}

	score = max(0, min(100, score))

	return ValidationResult{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Strength: strengthFor(score),
		Score:    score,
	}
}

func classify(password string) (hasUpper, hasLower, hasDigit bool, specials int) {
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(SpecialChars, r):
			specials++
		}
	}
	return
}

// longestRun returns the longest run of one character, case-insensitively
func longestRun(password string) int {
	longest, current := 0, 0
	var prev rune
	for i, r := range []rune(strings.ToLower(password)) {
		if i > 0 && r == prev {
			current++
		} else {
			current = 1
		}
		prev = r
		longest = max(longest, current)
	}
	return longest
}

func strengthFor(score int) string {
	switch {
	case score < 30:
		return StrengthWeak
	case score < 50:
		return StrengthFair
	case score < 70:
		return StrengthGood
	case score < 90:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}
