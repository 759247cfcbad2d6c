package catalog

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-engine/internal/domain/notify"
)

type mockCascadeRepo struct {
	Repository

	brandResult    CascadeResult
	brandErr       error
	categoryResult CascadeResult
	categoryErr    error
	lastName       string
}

func (m *mockCascadeRepo) RemoveBrandCascade(_ context.Context, name string) (CascadeResult, error) {
	m.lastName = name
	return m.brandResult, m.brandErr
}

func (m *mockCascadeRepo) RemoveCategoryCascade(_ context.Context, name string) (CascadeResult, error) {
	m.lastName = name
	return m.categoryResult, m.categoryErr
}

type recordingNotifier struct {
	severities []notify.Severity
	messages   []string
}

func (r *recordingNotifier) NotifyAdmin(_ context.Context, severity notify.Severity, message string) {
	r.severities = append(r.severities, severity)
	r.messages = append(r.messages, message)
}

func TestRemoveBrand(t *testing.T) {
	repo := &mockCascadeRepo{brandResult: CascadeResult{Products: 4, Promotions: 2}}
	sink := &recordingNotifier{}
	d := NewDeleter(repo, sink)

	require.NoError(t, d.RemoveBrand(context.Background(), "Optimum Nutrition"))

	assert.Equal(t, "Optimum Nutrition", repo.lastName)
	require.Len(t, sink.messages, 1)
	assert.Equal(t, notify.SeverityInfo, sink.severities[0])
	assert.Contains(t, sink.messages[0], "4 products")
	assert.Contains(t, sink.messages[0], "2 promotions")
}

func TestRemoveBrand_NotFound(t *testing.T) {
	repo := &mockCascadeRepo{brandErr: ErrBrandNotFound}
	sink := &recordingNotifier{}
	d := NewDeleter(repo, sink)

	err := d.RemoveBrand(context.Background(), "Nope")
	require.ErrorIs(t, err, ErrBrandNotFound)
	assert.Empty(t, sink.messages, "failed removal must not notify")
}

func TestRemoveBrand_RepoError(t *testing.T) {
	repo := &mockCascadeRepo{brandErr: errors.New("tx aborted")}
	d := NewDeleter(repo, notify.Nop{})

	err := d.RemoveBrand(context.Background(), "Optimum Nutrition")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove brand")
}

func TestRemoveCategory(t *testing.T) {
	repo := &mockCascadeRepo{categoryResult: CascadeResult{Products: 1, Promotions: 1}}
	sink := &recordingNotifier{}
	d := NewDeleter(repo, sink)

	require.NoError(t, d.RemoveCategory(context.Background(), "Protein"))

	assert.Equal(t, "Protein", repo.lastName)
	require.Len(t, sink.messages, 1)
	assert.Contains(t, sink.messages[0], `category "Protein" removed`)
}

func TestRemoveCategory_NotFound(t *testing.T) {
	repo := &mockCascadeRepo{categoryErr: ErrCategoryNotFound}
	d := NewDeleter(repo, notify.Nop{})

	err := d.RemoveCategory(context.Background(), "Nope")
	require.ErrorIs(t, err, ErrCategoryNotFound)
}
