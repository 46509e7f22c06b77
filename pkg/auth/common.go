package auth

import "strings"

// DefaultCommonPasswords is used when no rules file provides a list
var DefaultCommonPasswords = []string{
	"password", "password1", "password123", "123456", "12345678", "123456789",
	"qwerty", "abc123", "monkey", "1234567", "letmein", "trustno1", "dragon",
	"baseball", "iloveyou", "master", "sunshine", "ashley", "passw0rd", "shadow",
	"123123", "654321", "superman", "qazwsx", "michael", "football", "password12",
	"princess", "admin", "welcome", "login", "starwars", "hello", "charlie",
	"donald", "password2",
}

// CommonPasswordList matches passwords against a known-weak list,
// case-insensitively and ignoring trailing digits and symbols.
type CommonPasswordList struct {
	entries map[string]struct{}
}

func NewCommonPasswordList(passwords []string) *CommonPasswordList {
	entries := make(map[string]struct{}, len(passwords))
	for _, p := range passwords {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			entries[p] = struct{}{}
		}
	}
	return &CommonPasswordList{entries: entries}
}

func (l *CommonPasswordList) Contains(password string) bool {
	if l == nil {
		return false
	}
	lower := strings.ToLower(password)
	if _, ok := l.entries[lower]; ok {
		return true
	}

	// "Password1!" is "password" with decoration
	base := strings.TrimRightFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if base == "" || base == lower {
		return false
	}
	_, ok := l.entries[base]
	return ok
}

func (l *CommonPasswordList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}
