package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
	"github.com/dha2608/MLN-AI/internal/domain/repository"
	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

var matchColumns = []string{"id", "room_code", "host_id", "mode", "state"}

func matchRow(id uuid.UUID, state string) *sqlmock.Rows {
	return sqlmock.NewRows(matchColumns).AddRow(id.String(), "ABC123", "host", entity.MatchModePvP, state)
}

// ==================== SQL ====================

func TestCompareAndSetStateQuery_ConditionalUpdate(t *testing.T) {
	db, _ := newMockDB(t)
	id := uuid.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	query := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return compareAndSetStateQuery(tx, id, entity.MatchStateWaiting, map[string]interface{}{
			"state":      entity.MatchStatePlaying,
			"started_at": at,
			"updated_at": at,
		})
	})

	assert.True(t, strings.HasPrefix(query, `UPDATE "matches" SET`), query)
	assert.Contains(t, query, `"state"='playing'`)
	// Состояние меняется, только если матч всё ещё в исходном состоянии
	assert.Contains(t, query, `WHERE id = '`+id.String()+`' AND state = 'waiting'`)
}

func TestLockMatchQuery_ForShare(t *testing.T) {
	db, _ := newMockDB(t)
	id := uuid.New()

	query := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var match entity.Match
		return lockMatchQuery(tx, id, &match)
	})

	assert.True(t, strings.HasPrefix(query, `SELECT * FROM "matches" WHERE id = '`+id.String()+`'`), query)
	assert.True(t, strings.HasSuffix(query, "FOR SHARE"), query)
}

func TestParticipantUpdateQuery_KeyedByMatchAndParticipant(t *testing.T) {
	db, _ := newMockDB(t)
	id := uuid.New()

	query := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return participantUpdateQuery(tx, id, "g1", map[string]interface{}{
			"score":      int64(7),
			"updated_at": gorm.Expr("now()"),
		})
	})

	assert.True(t, strings.HasPrefix(query, `UPDATE "match_participants" SET`), query)
	assert.Contains(t, query, `"score"=7`)
	assert.Contains(t, query, `WHERE match_id = '`+id.String()+`' AND participant_id = 'g1'`)
}

// ==================== Transition ====================

func TestMatchRepo_Transition_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE id = \$\d+ AND state = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// При завершении матча строки участников закрываются в той же транзакции
	mock.ExpectExec(`UPDATE "match_participants" SET .+ WHERE match_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1`).
		WillReturnRows(matchRow(id, entity.MatchStateFinished))
	mock.ExpectCommit()

	match, err := repo.Transition(context.Background(), id, entity.MatchStatePlaying, entity.MatchStateFinished, time.Now())

	require.NoError(t, err)
	assert.Equal(t, id, match.ID)
	assert.Equal(t, entity.MatchStateFinished, match.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_Transition_LostRaceIsStateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE id = \$\d+ AND state = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1`).
		WillReturnRows(matchRow(id, entity.MatchStateFinished))
	mock.ExpectRollback()

	match, err := repo.Transition(context.Background(), id, entity.MatchStateWaiting, entity.MatchStatePlaying, time.Now())

	assert.ErrorIs(t, err, repository.ErrStateConflict)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_Transition_MissingMatchIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE id = \$\d+ AND state = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(matchColumns))
	mock.ExpectRollback()

	match, err := repo.Transition(context.Background(), id, entity.MatchStateWaiting, entity.MatchStatePlaying, time.Now())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, repository.ErrStateConflict)
	assert.Nil(t, match)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_Transition_InvalidEdgeSkipsStorage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)

	_, err := repo.Transition(context.Background(), uuid.New(), entity.MatchStateWaiting, entity.MatchStateFinished, time.Now())

	assert.ErrorIs(t, err, repository.ErrStateConflict)
	assert.NoError(t, mock.ExpectationsWereMet(), "Запросов к базе быть не должно")
}

func TestMatchRepo_Transition_ConnectionLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "matches" SET`).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), uuid.New(), entity.MatchStateWaiting, entity.MatchStatePlaying, time.Now())

	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==================== Участники ====================

func TestMatchRepo_UpdateScore_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(matchRow(id, entity.MatchStatePlaying))
	mock.ExpectExec(`UPDATE "match_participants" SET .+ WHERE match_id = \$\d+ AND participant_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "match_participants" WHERE match_id = \$1 AND participant_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"match_id", "participant_id", "score", "status"}).
			AddRow(id.String(), "g1", 7, entity.ParticipantStatusJoined))
	mock.ExpectCommit()

	row, err := repo.UpdateScore(context.Background(), id, "g1", 7, entity.MatchStatePlaying)

	require.NoError(t, err)
	assert.Equal(t, int64(7), row.Score)
	assert.Equal(t, "g1", row.ParticipantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_UpdateScore_WrongStateIsStateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(matchRow(id, entity.MatchStateWaiting))
	mock.ExpectRollback()

	row, err := repo.UpdateScore(context.Background(), id, "g1", 7, entity.MatchStatePlaying)

	assert.ErrorIs(t, err, repository.ErrStateConflict)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_UpdateScore_UnknownParticipantIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(matchRow(id, entity.MatchStatePlaying))
	mock.ExpectExec(`UPDATE "match_participants" SET .+ WHERE match_id = \$\d+ AND participant_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	row, err := repo.UpdateScore(context.Background(), id, "stranger", 7, entity.MatchStatePlaying)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, repository.ErrStateConflict)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_SetParticipantStatus_MissingMatchIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(sqlmock.NewRows(matchColumns))
	mock.ExpectRollback()

	_, err := repo.SetParticipantStatus(context.Background(), uuid.New(), "g1", entity.ParticipantStatusReady, entity.MatchStateWaiting)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_AddParticipantIfWaiting_StartedMatchRefused(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepo(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(matchRow(id, entity.MatchStatePlaying))
	mock.ExpectRollback()

	row, created, err := repo.AddParticipantIfWaiting(context.Background(), &entity.MatchParticipant{
		MatchID:       id,
		ParticipantID: "late",
		JoinedAt:      time.Now(),
	})

	assert.ErrorIs(t, err, repository.ErrMatchNotWaiting)
	assert.False(t, created)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}
