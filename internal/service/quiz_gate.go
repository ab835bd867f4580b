package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// LeaderboardInvalidator сбрасывает кеш таблицы лидеров после изменения счетов
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// QuizGateConfig параметры шлюза ежедневного квиза
type QuizGateConfig struct {
	// DefaultQuestions засчитывается, если клиент не прислал число вопросов
	DefaultQuestions int64
	// MaxScore верхняя граница счёта за попытку; 0 - без ограничения
	MaxScore     int64
	QueryTimeout time.Duration
}

// QuizGate допускает не более одной засчитанной попытки квиза на участника в календарный день
type QuizGate struct {
	ledger      repository.ScoreLedger
	clock       *clock.Clock
	leaderboard LeaderboardInvalidator
	config      QuizGateConfig
	logger      *zap.Logger
}

// NewQuizGate создает шлюз квиза. leaderboard может быть nil.
func NewQuizGate(
	ledger repository.ScoreLedger,
	clk *clock.Clock,
	leaderboard LeaderboardInvalidator,
	config QuizGateConfig,
	logger *zap.Logger,
) *QuizGate {
	return &QuizGate{
		ledger:      ledger,
		clock:       clk,
		leaderboard: leaderboard,
		config:      config,
		logger:      logger,
	}
}

func validateParticipant(participantID string) error {
	if strings.TrimSpace(participantID) == "" {
		return fmt.Errorf("%w: participant id is required", apperrors.ErrValidation)
	}
	return nil
}

func validateScore(score, maxScore int64) error {
	if score < 0 {
		return fmt.Errorf("%w: score must be non-negative, got %d", apperrors.ErrValidation, score)
	}
	if maxScore > 0 && score > maxScore {
		return fmt.Errorf("%w: score must not exceed %d, got %d", apperrors.ErrValidation, maxScore, score)
	}
	return nil
}

// Status возвращает текущую запись участника и признак доступности попытки сегодня
func (g *QuizGate) Status(ctx context.Context, participantID string) (*QuizStatus, error) {
	if err := validateParticipant(participantID); err != nil {
		return nil, err
	}

	today := g.clock.Today()
	var rec *entity.ScoreRecord
	err := storageCall(ctx, g.config.QueryTimeout, g.logger, "quiz.status", func(ctx context.Context) error {
		var err error
		rec, err = g.ledger.Get(ctx, participantID)
		return err
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to load score record: %w", err)
	}

	return &QuizStatus{
		CanAttempt: !rec.AttemptedOn(today),
		Today:      today,
		Record:     rec,
	}, nil
}

// CanAttempt возвращает true, если записи нет или последняя попытка была не сегодня
func (g *QuizGate) CanAttempt(ctx context.Context, participantID string) (bool, error) {
	status, err := g.Status(ctx, participantID)
	if err != nil {
		return false, err
	}
	return status.CanAttempt, nil
}

// Submit засчитывает попытку за сегодня. questions <= 0 заменяется значением по умолчанию.
// Повторная попытка за тот же день возвращает RejectAlreadyAttemptedToday, а не ошибку.
func (g *QuizGate) Submit(ctx context.Context, participantID string, score, questions int64) (SubmitResult, error) {
	if err := validateParticipant(participantID); err != nil {
		return SubmitResult{}, err
	}
	if err := validateScore(score, g.config.MaxScore); err != nil {
		return SubmitResult{}, err
	}
	if questions <= 0 {
		questions = g.config.DefaultQuestions
	}

	today := g.clock.Today()
	var (
		rec       *entity.ScoreRecord
		committed bool
	)
	err := storageCall(ctx, g.config.QueryTimeout, g.logger, "quiz.submit", func(ctx context.Context) error {
		var err error
		rec, committed, err = g.ledger.CommitAttempt(ctx, participantID, score, questions, today)
		return err
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to commit attempt: %w", err)
	}

	if !committed {
		g.logger.Info("[QuizGate] Попытка отклонена: уже была сегодня",
			zap.String("participant_id", participantID),
			zap.String("day", clock.FormatDate(today)),
		)
		return SubmitResult{Record: rec, Rejection: RejectAlreadyAttemptedToday}, nil
	}

	g.logger.Info("[QuizGate] Попытка засчитана",
		zap.String("participant_id", participantID),
		zap.Int64("score", score),
		zap.Int64("cumulative_score", rec.CumulativeScore),
	)
	if g.leaderboard != nil {
		g.leaderboard.Invalidate(ctx)
	}
	return SubmitResult{Record: rec}, nil
}
