package auth

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	DefaultGeneratedLength = 16
	minGeneratedLength     = 4

	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

// GenerateSecurePassword suggests a password with at least one character
// from each class, shuffled. It is a convenience for default suggestions;
// do not reuse it for tokens or keys.
func GenerateSecurePassword(length int) (string, error) {
	if length == 0 {
		length = DefaultGeneratedLength
	}
	if length < minGeneratedLength || length > MaxPasswordLen {
		return "", fmt.Errorf("length must be between %d and %d", minGeneratedLength, MaxPasswordLen)
	}

	all := upperChars + lowerChars + digitChars + SpecialChars
	out := make([]byte, 0, length)

	for _, class := range []string{upperChars, lowerChars, digitChars, SpecialChars} {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := cryptoRandIntn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := cryptoRandIntn(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

// cryptoRandIntn returns a random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return int(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}
