package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/notify"
	"github.com/xenking/promo-engine/pkg/clock"
)

type mockSweepRepo struct {
	Repository

	calls        []string
	activated    int64
	expired      int64
	activateErr  error
	expireErr    error
	lastActivate time.Time
	lastExpire   time.Time
}

func (m *mockSweepRepo) ActivateDue(_ context.Context, now time.Time) (int64, error) {
	m.calls = append(m.calls, "activate")
	m.lastActivate = now
	return m.activated, m.activateErr
}

func (m *mockSweepRepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	m.calls = append(m.calls, "expire")
	m.lastExpire = now
	return m.expired, m.expireErr
}

func TestSweep_ActivationBeforeExpiration(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockSweepRepo{activated: 2, expired: 1}
	s, err := NewSweeper(repo, clock.Fixed(now), notify.Nop{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, []string{"activate", "expire"}, repo.calls)
	assert.Equal(t, now, repo.lastActivate)
	assert.Equal(t, now, repo.lastExpire)
}

func TestSweep_ActivateError(t *testing.T) {
	repo := &mockSweepRepo{activateErr: errors.New("db down")}
	s, err := NewSweeper(repo, clock.System{}, notify.Nop{}, nil)
	require.NoError(t, err)

	err = s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activate due promotions")
	assert.Equal(t, []string{"activate"}, repo.calls)
}

func TestSweep_ExpireError(t *testing.T) {
	repo := &mockSweepRepo{expireErr: errors.New("db down")}
	s, err := NewSweeper(repo, clock.System{}, notify.Nop{}, nil)
	require.NoError(t, err)

	err = s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire due promotions")
}

func TestActivateDueSweep_Count(t *testing.T) {
	repo := &mockSweepRepo{activated: 3}
	s, err := NewSweeper(repo, clock.System{}, notify.Nop{}, nil)
	require.NoError(t, err)

	n, err := s.ActivateDueSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &mockSweepRepo{}
	s, err := NewSweeper(repo, clock.System{}, notify.Nop{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
