package utils

import (
	"crypto/rand"
	"strings"
)

// RefCodeHookFunc defines the signature for the NewRefCode test hook.
// It returns a code and a boolean indicating whether to override the default generation.
type RefCodeHookFunc func(prefix string) (code string, override bool)

// NewRefCodeHook is a package-level variable that tests can set to override NewRefCode behavior.
var NewRefCodeHook RefCodeHookFunc

// RefCodeLength is the number of random characters after the prefix.
const RefCodeLength = 6

// Crockford Base32 encoding alphabet (uppercase)
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewRefCode returns a human-readable reference such as "DRF-7K2Q9M".
// Codes are random, so callers inserting them under a unique index should retry on collision.
func NewRefCode(prefix string) string {
	if NewRefCodeHook != nil {
		if code, override := NewRefCodeHook(prefix); override {
			return code
		}
	}

	var buf [RefCodeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// fallback to zeros if random fails
		for i := range buf {
			buf[i] = 0
		}
	}

	out := make([]byte, RefCodeLength)
	for i, b := range buf {
		out[i] = crockfordAlphabet[b&0x1F]
	}
	return prefix + "-" + string(out)
}

// NormalizeRefCode upper-cases a typed reference and maps the characters
// Crockford treats as ambiguous (O, I, L) to their digits.
func NormalizeRefCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	prefix, code, found := strings.Cut(s, "-")
	if !found {
		return s
	}
	code = strings.NewReplacer("O", "0", "I", "1", "L", "1", " ", "").Replace(code)
	return prefix + "-" + code
}

// IsRefCode reports whether s looks like a reference generated with prefix.
func IsRefCode(s, prefix string) bool {
	s = NormalizeRefCode(s)
	if !strings.HasPrefix(s, prefix+"-") {
		return false
	}
	code := s[len(prefix)+1:]
	if len(code) != RefCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(crockfordAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
