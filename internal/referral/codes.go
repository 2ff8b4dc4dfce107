package referral

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the length of a referral code
const CodeLength = 8

// codeAlphabet omits 0/O and 1/I so codes survive being read aloud
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode generates a random referral code
func NewCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode uppercases and trims user input
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the shape of a referral code
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
