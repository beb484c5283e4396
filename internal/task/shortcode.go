package task

import (
	"crypto/rand"
	"fmt"
)

// ShortCodeAlphabet omits characters that are easy to misread (0, O, 1, I).
const ShortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ShortCodeLength is the length of generated short codes.
const ShortCodeLength = 6

// GenerateShortCode returns a random 6-character code from ShortCodeAlphabet.
func GenerateShortCode() (string, error) {
	b := make([]byte, ShortCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("task: generate short code: %w", err)
	}
	// 256 is a multiple of len(alphabet), so the modulo is unbiased.
	for i := range b {
		b[i] = ShortCodeAlphabet[int(b[i])%len(ShortCodeAlphabet)]
	}
	return string(b), nil
}
