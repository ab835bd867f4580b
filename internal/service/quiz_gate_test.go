package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
	"github.com/dha2608/MLN-AI/internal/repository/memory"
)

// ============================================================================
// Хелперы
// ============================================================================

func newTestClock(t *testing.T) (*clock.Clock, *clockwork.FakeClock) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	fake := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, loc))
	return clock.New(fake, loc), fake
}

func newTestGate(t *testing.T) (*QuizGate, *memory.ScoreLedger, *clockwork.FakeClock) {
	t.Helper()
	clk, fake := newTestClock(t)
	ledger := memory.NewScoreLedger()
	gate := NewQuizGate(ledger, clk, nil, QuizGateConfig{DefaultQuestions: 5, QueryTimeout: time.Second}, zap.NewNop())
	return gate, ledger, fake
}

// ============================================================================
// Сценарии шлюза
// ============================================================================

func TestQuizGate_FirstAttemptThenSameDayRejected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	gate, _, _ := newTestGate(t)

	can, err := gate.CanAttempt(ctx, "U")
	require.NoError(t, err)
	assert.True(t, can, "Участник без записи может пройти квиз")

	// Act
	first, err := gate.Submit(ctx, "U", 80, 0)
	require.NoError(t, err)
	second, err := gate.Submit(ctx, "U", 20, 0)
	require.NoError(t, err)

	// Assert
	assert.True(t, first.Accepted())
	assert.Equal(t, int64(80), first.Record.CumulativeScore)
	assert.Equal(t, int64(5), first.Record.TotalQuestions, "Число вопросов по умолчанию")

	assert.False(t, second.Accepted())
	assert.Equal(t, RejectAlreadyAttemptedToday, second.Rejection)
	assert.Equal(t, int64(80), second.Record.CumulativeScore, "Счёт не должен измениться")

	can, err = gate.CanAttempt(ctx, "U")
	require.NoError(t, err)
	assert.False(t, can)
}

func TestQuizGate_SumAcrossDays(t *testing.T) {
	ctx := context.Background()
	gate, _, fake := newTestGate(t)
	scores := []int64{30, 0, 45, 12, 100}

	var last SubmitResult
	for _, s := range scores {
		res, err := gate.Submit(ctx, "U", s, 5)
		require.NoError(t, err)
		require.True(t, res.Accepted())
		last = res
		fake.Advance(24 * time.Hour)
	}

	assert.Equal(t, int64(187), last.Record.CumulativeScore)
	assert.Equal(t, int64(25), last.Record.TotalQuestions)
}

func TestQuizGate_NewDayAtLocalMidnight(t *testing.T) {
	ctx := context.Background()
	gate, _, fake := newTestGate(t)

	_, err := gate.Submit(ctx, "U", 10, 5)
	require.NoError(t, err)

	// 09:00 → 23:59 того же дня
	fake.Advance(14*time.Hour + 59*time.Minute)
	res, err := gate.Submit(ctx, "U", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, RejectAlreadyAttemptedToday, res.Rejection)

	fake.Advance(2 * time.Minute)
	res, err = gate.Submit(ctx, "U", 10, 5)
	require.NoError(t, err)
	assert.True(t, res.Accepted(), "После местной полуночи начинается новый день")
}

func TestQuizGate_ConcurrentSubmitsExactlyOneAccepted(t *testing.T) {
	ctx := context.Background()
	gate, ledger, _ := newTestGate(t)
	const n = 50

	var accepted, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(score int64) {
			defer wg.Done()
			res, err := gate.Submit(ctx, "U", score, 5)
			if !assert.NoError(t, err) {
				return
			}
			if res.Accepted() {
				atomic.AddInt32(&accepted, 1)
			} else {
				atomic.AddInt32(&rejected, 1)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted, "Ровно одна попытка должна быть засчитана")
	assert.Equal(t, int32(n-1), rejected)

	rec, err := ledger.Get(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.TotalQuestions)
}

func TestQuizGate_Status(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate(t)

	status, err := gate.Status(ctx, "U")
	require.NoError(t, err)
	assert.True(t, status.CanAttempt)
	assert.Nil(t, status.Record)
	assert.Equal(t, "2024-03-01", clock.FormatDate(status.Today))

	_, err = gate.Submit(ctx, "U", 40, 5)
	require.NoError(t, err)

	status, err = gate.Status(ctx, "U")
	require.NoError(t, err)
	assert.False(t, status.CanAttempt)
	require.NotNil(t, status.Record)
	assert.Equal(t, int64(40), status.Record.CumulativeScore)
}

// ============================================================================
// Валидация и ошибки хранилища
// ============================================================================

func TestQuizGate_Validation(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate(t)

	_, err := gate.Submit(ctx, "U", -1, 5)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = gate.Submit(ctx, "  ", 10, 5)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = gate.Status(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestQuizGate_ScoreAboveMaxRejected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clk, _ := newTestClock(t)
	gate := NewQuizGate(memory.NewScoreLedger(), clk, nil, QuizGateConfig{DefaultQuestions: 5, MaxScore: 100}, zap.NewNop())

	// Act
	_, err := gate.Submit(ctx, "U", 101, 5)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	can, err := gate.CanAttempt(ctx, "U")
	require.NoError(t, err)
	assert.True(t, can, "Отклонённый счёт не тратит попытку")

	res, err := gate.Submit(ctx, "U", 100, 5)
	require.NoError(t, err)
	assert.True(t, res.Accepted(), "Граница включительно")
}

func TestQuizGate_CumulativeOverflowRefused(t *testing.T) {
	// Arrange: без верхней границы в шлюзе переполнение ловит хранилище
	ctx := context.Background()
	gate, _, fake := newTestGate(t)

	first, err := gate.Submit(ctx, "U", math.MaxInt64, 5)
	require.NoError(t, err)
	require.True(t, first.Accepted())

	// Act
	fake.Advance(24 * time.Hour)
	_, err = gate.Submit(ctx, "U", 10, 5)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	status, err := gate.Status(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), status.Record.CumulativeScore, "Накопленный счёт не должен стать отрицательным")
	assert.True(t, status.CanAttempt, "Незасчитанная попытка не тратит день")
}

func TestQuizGate_StorageUnavailablePropagates(t *testing.T) {
	clk, _ := newTestClock(t)
	ledger := new(MockScoreLedger)
	ledger.On("CommitAttempt", mock.Anything, "U", int64(10), int64(5), clk.Today()).
		Return(nil, false, apperrors.ErrStorageUnavailable).Once()

	gate := NewQuizGate(ledger, clk, nil, QuizGateConfig{DefaultQuestions: 5}, zap.NewNop())

	_, err := gate.Submit(context.Background(), "U", 10, 5)

	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	ledger.AssertExpectations(t)
}

func TestQuizGate_InvariantViolationRetriedOnce(t *testing.T) {
	clk, _ := newTestClock(t)
	day := clk.Today()
	rec := &entity.ScoreRecord{ParticipantID: "U", CumulativeScore: 10, LastAttemptDate: &day}

	ledger := new(MockScoreLedger)
	ledger.On("CommitAttempt", mock.Anything, "U", int64(10), int64(5), day).
		Return(nil, false, apperrors.ErrInvariantViolated).Once()
	ledger.On("CommitAttempt", mock.Anything, "U", int64(10), int64(5), day).
		Return(rec, true, nil).Once()

	gate := NewQuizGate(ledger, clk, nil, QuizGateConfig{DefaultQuestions: 5}, zap.NewNop())

	res, err := gate.Submit(context.Background(), "U", 10, 5)

	require.NoError(t, err)
	assert.True(t, res.Accepted())
	ledger.AssertNumberOfCalls(t, "CommitAttempt", 2)
}

func TestQuizGate_InvariantViolationSurfacesAfterRetry(t *testing.T) {
	clk, _ := newTestClock(t)
	ledger := new(MockScoreLedger)
	ledger.On("CommitAttempt", mock.Anything, "U", int64(10), int64(5), clk.Today()).
		Return(nil, false, apperrors.ErrInvariantViolated).Twice()

	gate := NewQuizGate(ledger, clk, nil, QuizGateConfig{DefaultQuestions: 5}, zap.NewNop())

	_, err := gate.Submit(context.Background(), "U", 10, 5)

	assert.ErrorIs(t, err, apperrors.ErrInvariantViolated)
	ledger.AssertNumberOfCalls(t, "CommitAttempt", 2)
}

func TestQuizGate_InvalidatesLeaderboardOnlyOnAccept(t *testing.T) {
	ctx := context.Background()
	clk, _ := newTestClock(t)
	inv := new(MockInvalidator)
	inv.On("Invalidate", mock.Anything).Return().Once()

	gate := NewQuizGate(memory.NewScoreLedger(), clk, inv, QuizGateConfig{DefaultQuestions: 5}, zap.NewNop())

	_, err := gate.Submit(ctx, "U", 10, 5)
	require.NoError(t, err)
	_, err = gate.Submit(ctx, "U", 10, 5)
	require.NoError(t, err)

	inv.AssertNumberOfCalls(t, "Invalidate", 1)
}
