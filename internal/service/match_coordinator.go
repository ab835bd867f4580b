package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// MatchEventPublisher рассылает события о принятых изменениях матча
type MatchEventPublisher interface {
	PublishMatchEvent(ctx context.Context, event entity.MatchEvent)
}

// MatchCoordinatorConfig параметры координатора матчей
type MatchCoordinatorConfig struct {
	RoomCodeLength   int
	RoomCodeAttempts int
	QueryTimeout     time.Duration
	// AnonymousName подставляется, если профиль участника не найден в справочнике
	AnonymousName string
	// MaxScore верхняя граница счёта в отчёте; 0 - без ограничения
	MaxScore int64
}

// MatchCoordinator управляет жизненным циклом матча: waiting → playing → finished.
// Все переходы выполняются через compare-and-set в MatchRegistry.
type MatchCoordinator struct {
	registry  repository.MatchRegistry
	directory repository.Directory
	clock     *clock.Clock
	publisher MatchEventPublisher
	codes     RoomCodeGenerator
	config    MatchCoordinatorConfig
	logger    *zap.Logger
}

// NewMatchCoordinator создает координатор матчей. publisher может быть nil.
func NewMatchCoordinator(
	registry repository.MatchRegistry,
	directory repository.Directory,
	clk *clock.Clock,
	publisher MatchEventPublisher,
	config MatchCoordinatorConfig,
	logger *zap.Logger,
) *MatchCoordinator {
	if config.RoomCodeLength <= 0 {
		config.RoomCodeLength = 6
	}
	if config.RoomCodeAttempts <= 0 {
		config.RoomCodeAttempts = 8
	}
	return &MatchCoordinator{
		registry:  registry,
		directory: directory,
		clock:     clk,
		publisher: publisher,
		codes:     RandomRoomCode,
		config:    config,
		logger:    logger,
	}
}

func (c *MatchCoordinator) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return storageCall(ctx, c.config.QueryTimeout, c.logger, op, fn)
}

func (c *MatchCoordinator) publish(ctx context.Context, matchID uuid.UUID, kind, participantID string) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishMatchEvent(ctx, entity.MatchEvent{
		MatchID:       matchID,
		Kind:          kind,
		ParticipantID: participantID,
		OccurredAt:    c.clock.Now(),
	})
}

func (c *MatchCoordinator) rejected(op string, matchID uuid.UUID, participantID string, reason Rejection) {
	c.logger.Info("[MatchCoordinator] Операция отклонена",
		zap.String("op", op),
		zap.String("match_id", matchID.String()),
		zap.String("participant_id", participantID),
		zap.String("reason", string(reason)),
	)
}

// Create создаёт матч в состоянии waiting и добавляет хоста со статусом ready.
// При коллизии кода комнаты код генерируется заново, не более RoomCodeAttempts раз.
func (c *MatchCoordinator) Create(ctx context.Context, hostID, mode string) (*entity.Match, *entity.MatchParticipant, error) {
	if err := validateParticipant(hostID); err != nil {
		return nil, nil, err
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = entity.MatchModePvP
	}
	if !entity.ValidMatchMode(mode) {
		return nil, nil, fmt.Errorf("%w: unknown match mode %q", apperrors.ErrValidation, mode)
	}

	for attempt := 1; attempt <= c.config.RoomCodeAttempts; attempt++ {
		code, err := c.codes(c.config.RoomCodeLength)
		if err != nil {
			return nil, nil, err
		}

		now := c.clock.Now()
		match := &entity.Match{
			ID:        uuid.New(),
			RoomCode:  code,
			HostID:    hostID,
			Mode:      mode,
			State:     entity.MatchStateWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		}
		host := &entity.MatchParticipant{
			MatchID:       match.ID,
			ParticipantID: hostID,
			Status:        entity.ParticipantStatusReady,
			JoinedAt:      now,
			UpdatedAt:     now,
		}

		err = c.call(ctx, "match.create", func(ctx context.Context) error {
			return c.registry.CreateWithHost(ctx, match, host)
		})
		if errors.Is(err, repository.ErrRoomCodeTaken) {
			c.logger.Debug("[MatchCoordinator] Код комнаты занят, генерируем новый",
				zap.String("room_code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create match: %w", err)
		}

		c.logger.Info("[MatchCoordinator] Матч создан",
			zap.String("match_id", match.ID.String()),
			zap.String("room_code", code),
			zap.String("host_id", hostID),
			zap.String("mode", mode),
		)
		c.publish(ctx, match.ID, entity.MatchEventCreated, hostID)
		return match, host, nil
	}

	return nil, nil, fmt.Errorf("%w: no free room code after %d attempts", apperrors.ErrInvariantViolated, c.config.RoomCodeAttempts)
}

// Join добавляет участника в ожидающий матч по коду комнаты.
// Повторный вызов возвращает существующую строку. После выхода матча из waiting всегда RejectRoomNotJoinable.
func (c *MatchCoordinator) Join(ctx context.Context, roomCode, participantID string) (JoinResult, error) {
	if err := validateParticipant(participantID); err != nil {
		return JoinResult{}, err
	}
	code := entity.NormalizeRoomCode(roomCode)
	if code == "" {
		return JoinResult{Rejection: RejectRoomNotJoinable}, nil
	}

	var (
		match   *entity.Match
		row     *entity.MatchParticipant
		created bool
	)
	err := c.call(ctx, "match.join", func(ctx context.Context) error {
		var err error
		match, err = c.registry.GetOpenByRoomCode(ctx, code)
		if err != nil {
			return err
		}
		if !match.IsWaiting() {
			return repository.ErrMatchNotWaiting
		}
		row, created, err = c.registry.AddParticipantIfWaiting(ctx, &entity.MatchParticipant{
			MatchID:       match.ID,
			ParticipantID: participantID,
			Status:        entity.ParticipantStatusJoined,
			JoinedAt:      c.clock.Now(),
		})
		return err
	})
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, repository.ErrMatchNotWaiting) {
		c.logger.Info("[MatchCoordinator] Комната недоступна для входа",
			zap.String("room_code", code), zap.String("participant_id", participantID))
		return JoinResult{Rejection: RejectRoomNotJoinable}, nil
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to join match: %w", err)
	}

	if created {
		c.publish(ctx, match.ID, entity.MatchEventJoined, participantID)
	}
	return JoinResult{Match: match, Participant: row, Rejoined: !created}, nil
}

// Ready отмечает участника готовым, пока матч в waiting
func (c *MatchCoordinator) Ready(ctx context.Context, matchID uuid.UUID, participantID string) (ParticipantResult, error) {
	if err := validateParticipant(participantID); err != nil {
		return ParticipantResult{}, err
	}

	var row *entity.MatchParticipant
	reason, err := c.updateParticipant(ctx, "match.ready", matchID, participantID, func(ctx context.Context) error {
		var err error
		row, err = c.registry.SetParticipantStatus(ctx, matchID, participantID, entity.ParticipantStatusReady, entity.MatchStateWaiting)
		return err
	})
	if err != nil || reason != "" {
		return ParticipantResult{Rejection: reason}, err
	}

	c.publish(ctx, matchID, entity.MatchEventReady, participantID)
	return ParticipantResult{Participant: row}, nil
}

// ReportScore записывает счёт участника (last-write-wins). Обновлять можно только свою строку
// и только пока матч в playing.
func (c *MatchCoordinator) ReportScore(ctx context.Context, matchID uuid.UUID, requesterID, participantID string, score int64) (ParticipantResult, error) {
	if err := validateParticipant(requesterID); err != nil {
		return ParticipantResult{}, err
	}
	if err := validateScore(score, c.config.MaxScore); err != nil {
		return ParticipantResult{}, err
	}
	if requesterID != participantID {
		c.rejected("match.score", matchID, requesterID, RejectNotParticipant)
		return ParticipantResult{Rejection: RejectNotParticipant}, nil
	}

	var row *entity.MatchParticipant
	reason, err := c.updateParticipant(ctx, "match.score", matchID, participantID, func(ctx context.Context) error {
		var err error
		row, err = c.registry.UpdateScore(ctx, matchID, participantID, score, entity.MatchStatePlaying)
		return err
	})
	if err != nil || reason != "" {
		return ParticipantResult{Rejection: reason}, err
	}

	c.publish(ctx, matchID, entity.MatchEventScore, participantID)
	return ParticipantResult{Participant: row}, nil
}

// updateParticipant выполняет условное обновление строки участника и переводит ошибки реестра в отказы:
// неизвестный матч → NotFound, нет строки → NotParticipant, неверное состояние → InvalidTransition.
func (c *MatchCoordinator) updateParticipant(ctx context.Context, op string, matchID uuid.UUID, participantID string, fn func(ctx context.Context) error) (Rejection, error) {
	err := c.call(ctx, op, func(ctx context.Context) error {
		if _, err := c.registry.GetByID(ctx, matchID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return errMatchMissing
			}
			return err
		}
		return fn(ctx)
	})

	var reason Rejection
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, errMatchMissing):
		reason = RejectNotFound
	case errors.Is(err, apperrors.ErrNotFound):
		reason = RejectNotParticipant
	case errors.Is(err, repository.ErrStateConflict):
		reason = RejectInvalidTransition
	default:
		return "", fmt.Errorf("%s failed: %w", op, err)
	}
	c.rejected(op, matchID, participantID, reason)
	return reason, nil
}

var errMatchMissing = errors.New("match not found")

// Start переводит матч waiting → playing. Только хост. Повторный вызов в playing ничего не меняет.
func (c *MatchCoordinator) Start(ctx context.Context, matchID uuid.UUID, requesterID string) (MatchResult, error) {
	return c.advance(ctx, "match.start", matchID, requesterID, entity.MatchStateWaiting, entity.MatchStatePlaying, entity.MatchEventStarted)
}

// Finish переводит матч playing → finished и освобождает код комнаты. Только хост.
// Повторный вызов в finished ничего не меняет, из waiting - RejectInvalidTransition.
func (c *MatchCoordinator) Finish(ctx context.Context, matchID uuid.UUID, requesterID string) (MatchResult, error) {
	return c.advance(ctx, "match.finish", matchID, requesterID, entity.MatchStatePlaying, entity.MatchStateFinished, entity.MatchEventFinished)
}

// advance выполняет переход хоста from → to. Если CAS проигран, состояние перечитывается
// и решение принимается заново: параллельный хост мог уже выполнить тот же переход.
func (c *MatchCoordinator) advance(ctx context.Context, op string, matchID uuid.UUID, requesterID, from, to, eventKind string) (MatchResult, error) {
	if err := validateParticipant(requesterID); err != nil {
		return MatchResult{}, err
	}

	var (
		result      MatchResult
		transitions bool
	)
	err := c.call(ctx, op, func(ctx context.Context) error {
		transitions = false
		for round := 0; round < 2; round++ {
			match, err := c.registry.GetByID(ctx, matchID)
			if errors.Is(err, apperrors.ErrNotFound) {
				result = MatchResult{Rejection: RejectNotFound}
				return nil
			}
			if err != nil {
				return err
			}
			if !match.IsHost(requesterID) {
				result = MatchResult{Match: match, Rejection: RejectNotHost}
				return nil
			}

			switch match.State {
			case to:
				result = MatchResult{Match: match}
				return nil
			case from:
			default:
				result = MatchResult{Match: match, Rejection: RejectInvalidTransition}
				return nil
			}

			updated, err := c.registry.Transition(ctx, matchID, from, to, c.clock.Now())
			if errors.Is(err, repository.ErrStateConflict) {
				continue
			}
			if err != nil {
				return err
			}
			result = MatchResult{Match: updated}
			transitions = true
			return nil
		}
		return fmt.Errorf("%w: match %s kept changing state", apperrors.ErrInvariantViolated, matchID)
	})
	if err != nil {
		return MatchResult{}, fmt.Errorf("%s failed: %w", op, err)
	}

	if !result.Accepted() {
		c.rejected(op, matchID, requesterID, result.Rejection)
		return result, nil
	}
	if transitions {
		c.logger.Info("[MatchCoordinator] Состояние матча изменено",
			zap.String("match_id", matchID.String()),
			zap.String("from", from),
			zap.String("to", to),
		)
		c.publish(ctx, matchID, eventKind, requesterID)
	}
	return result, nil
}

// Expire принудительно завершает зависший матч в playing (без проверки хоста).
// Возвращает false, если матч уже не в playing.
func (c *MatchCoordinator) Expire(ctx context.Context, matchID uuid.UUID) (bool, error) {
	err := c.call(ctx, "match.expire", func(ctx context.Context) error {
		_, err := c.registry.Transition(ctx, matchID, entity.MatchStatePlaying, entity.MatchStateFinished, c.clock.Now())
		return err
	})
	if errors.Is(err, repository.ErrStateConflict) || errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to expire match %s: %w", matchID, err)
	}

	c.logger.Info("[MatchCoordinator] Матч завершён по таймауту", zap.String("match_id", matchID.String()))
	c.publish(ctx, matchID, entity.MatchEventExpired, "")
	return true, nil
}

// GetState возвращает снимок матча с участниками и их отображаемыми именами
func (c *MatchCoordinator) GetState(ctx context.Context, matchID uuid.UUID) (SnapshotResult, error) {
	var (
		match *entity.Match
		rows  []entity.MatchParticipant
	)
	err := c.call(ctx, "match.get_state", func(ctx context.Context) error {
		var err error
		match, err = c.registry.GetByID(ctx, matchID)
		if err != nil {
			return err
		}
		rows, err = c.registry.ListParticipants(ctx, matchID)
		return err
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return SnapshotResult{Rejection: RejectNotFound}, nil
	}
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("failed to load match state: %w", err)
	}

	profiles := c.lookupProfiles(ctx, rows)
	views := make([]ParticipantView, len(rows))
	for i, row := range rows {
		views[i] = ParticipantView{MatchParticipant: row, DisplayName: c.config.AnonymousName}
		if p, ok := profiles[row.ParticipantID]; ok {
			if p.Name != "" {
				views[i].DisplayName = p.Name
			}
			views[i].AvatarURL = p.AvatarURL
		}
	}

	return SnapshotResult{Snapshot: &MatchSnapshot{Match: *match, Participants: views}}, nil
}

// lookupProfiles не считает недоступность справочника ошибкой снимка: имена заменяются на анонимные
func (c *MatchCoordinator) lookupProfiles(ctx context.Context, rows []entity.MatchParticipant) map[string]entity.Profile {
	if c.directory == nil || len(rows) == 0 {
		return nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ParticipantID
	}

	var profiles map[string]entity.Profile
	err := callWithTimeout(ctx, c.config.QueryTimeout, func(ctx context.Context) error {
		var err error
		profiles, err = c.directory.GetProfiles(ctx, ids)
		return err
	})
	if err != nil {
		c.logger.Warn("[MatchCoordinator] Не удалось получить профили участников", zap.Error(err))
		return nil
	}
	return profiles
}
