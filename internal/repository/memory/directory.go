package memory

import (
	"context"
	"sync"

	"github.com/dha2608/MLN-AI/internal/domain/entity"
)

// Directory справочник профилей в памяти
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]entity.Profile
}

// NewDirectory создает справочник с начальным набором профилей
func NewDirectory(profiles ...entity.Profile) *Directory {
	d := &Directory{profiles: make(map[string]entity.Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

// Put добавляет или заменяет профиль
func (d *Directory) Put(p entity.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

// GetProfiles возвращает найденные профили
func (d *Directory) GetProfiles(ctx context.Context, ids []string) (map[string]entity.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]entity.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
