package promocode

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r),
				"code %q contains %q outside the voucher alphabet", code, r)
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a 32^8 space must not all collide.
	assert.Greater(t, len(seen), 1)
}

func TestGenerateCode_NoAmbiguousCharacters(t *testing.T) {
	for _, r := range "01IO" {
		assert.NotContains(t, codeAlphabet, string(r))
	}
}

func TestAgedOut(t *testing.T) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c := PromoCode{CreatedAt: created}
	maxAge := 90 * 24 * time.Hour

	assert.False(t, c.AgedOut(created.Add(time.Hour), maxAge))
	assert.False(t, c.AgedOut(created.Add(maxAge), maxAge), "exactly max age is still redeemable")
	assert.True(t, c.AgedOut(created.Add(maxAge+time.Second), maxAge))
}
