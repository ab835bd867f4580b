package repository

import (
	"context"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// Directory читает профили из внешнего справочника пользователей.
// Отсутствующие id просто не попадают в результат.
type Directory interface {
	GetProfiles(ctx context.Context, ids []string) (map[string]entity.Profile, error)
}
