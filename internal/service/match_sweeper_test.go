package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

func TestMatchSweeper_ExpiresOnlyStalePlaying(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newCoordinatorFixture(t)

	stale, _, err := f.coordinator.Create(ctx, "H1", entity.MatchModePvP)
	require.NoError(t, err)
	_, err = f.coordinator.Start(ctx, stale.ID, "H1")
	require.NoError(t, err)

	waiting, _, err := f.coordinator.Create(ctx, "H2", entity.MatchModePvP)
	require.NoError(t, err)

	f.fake.Advance(3 * time.Hour)

	fresh, _, err := f.coordinator.Create(ctx, "H3", entity.MatchModePvP)
	require.NoError(t, err)
	_, err = f.coordinator.Start(ctx, fresh.ID, "H3")
	require.NoError(t, err)

	sweeper := NewMatchSweeper(f.coordinator, f.registry, f.coordinator.clock, 2*time.Hour, "@every 5m", zap.NewNop())

	// Act
	expired, err := sweeper.Sweep(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	s, err := f.coordinator.GetState(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStateFinished, s.Snapshot.Match.State)

	w, err := f.coordinator.GetState(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStateWaiting, w.Snapshot.Match.State, "Ожидающий матч не пропускает состояние")

	p, err := f.coordinator.GetState(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatePlaying, p.Snapshot.Match.State)

	assert.Contains(t, f.publisher.kinds(), entity.MatchEventExpired)

	// Повторный проход ничего не делает
	again, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestMatchSweeper_StartRejectsBadSchedule(t *testing.T) {
	f := newCoordinatorFixture(t)
	sweeper := NewMatchSweeper(f.coordinator, f.registry, f.coordinator.clock, time.Hour, "not a schedule", zap.NewNop())

	err := sweeper.Start()

	assert.Error(t, err)
}
