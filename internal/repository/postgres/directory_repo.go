package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// DirectoryRepo читает профили из таблицы users (реализует repository.Directory)
type DirectoryRepo struct {
	db *gorm.DB
}

// NewDirectoryRepo создает новый репозиторий справочника профилей
func NewDirectoryRepo(db *gorm.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

// GetProfiles возвращает профили одним запросом на всю пачку id
func (r *DirectoryRepo) GetProfiles(ctx context.Context, ids []string) (map[string]entity.Profile, error) {
	profiles := make(map[string]entity.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	var rows []entity.Profile
	err := r.db.WithContext(ctx).
		Select("id", "name", "avatar_url").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr("get profiles", err)
	}

	for _, p := range rows {
		profiles[p.ID] = p
	}
	return profiles, nil
}
