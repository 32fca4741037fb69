package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/econpulse/econpulse/internal/application"
)

type mockQuotaStore struct {
	cutoffs []int64
	deleted int64
	err     error
}

func (m *mockQuotaStore) Count(_ context.Context, _ string, _ int64) (int, error) {
	return 0, nil
}

func (m *mockQuotaStore) Increment(_ context.Context, _ string, _ int64) error {
	return nil
}

func (m *mockQuotaStore) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, m.err
}

func TestSweepService_SweepOnce_CutoffHonorsRetention(t *testing.T) {
	store := &mockQuotaStore{deleted: 3}
	svc := application.NewSweepService(store, time.Hour, 2*time.Hour)

	require.NoError(t, svc.SweepOnce(context.Background()))

	require.Len(t, store.cutoffs, 1)
	want := time.Now().Add(-2 * time.Hour).Unix()
	assert.InDelta(t, want, store.cutoffs[0], 2)
}

func TestSweepService_SweepOnce_ErrorPropagates(t *testing.T) {
	store := &mockQuotaStore{err: assert.AnError}
	svc := application.NewSweepService(store, time.Hour, 2*time.Hour)

	err := svc.SweepOnce(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}
