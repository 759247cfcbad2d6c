package promocode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/pkg/clock"
)

func TestSweep_InvalidatesAgedCodes(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 90 * 24 * time.Hour

	fresh := &PromoCode{Code: "FRESHONE", Remaining: 1, Valid: true, CreatedAt: now.Add(-time.Hour)}
	aged := &PromoCode{Code: "OLDCODES", Remaining: 1, Valid: true, CreatedAt: now.Add(-maxAge - time.Hour)}
	alreadyDead := &PromoCode{Code: "DEADCODE", Remaining: 1, Valid: false, CreatedAt: now.Add(-maxAge - time.Hour)}
	repo := newMockCodeRepo(fresh, aged, alreadyDead)

	s, err := NewSweeper(repo, clock.Fixed(now), maxAge, notify.Nop{}, nil)
	require.NoError(t, err)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, fresh.Valid)
	assert.False(t, aged.Valid)

	// Re-sweeping at the same instant changes nothing.
	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSweep_NeverResurrects(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dead := &PromoCode{Code: "DEADCODE", Remaining: 1, Valid: false, CreatedAt: now.Add(-time.Hour)}
	repo := newMockCodeRepo(dead)

	s, err := NewSweeper(repo, clock.Fixed(now), DefaultMaxAge, notify.Nop{}, nil)
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, dead.Valid)
}
