package promocode

import (
	"crypto/rand"

	"github.com/go-faster/errors"
)

// codeAlphabet excludes 0, 1, I and O, which read ambiguously on printed
// vouchers.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of generated promo code strings.
const CodeLength = 8

// GenerateCode returns a random voucher code. Uniqueness is enforced by the
// store; callers retry on ErrDuplicateCode.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
