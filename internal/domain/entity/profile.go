package entity

// Profile проекция внешнего справочника пользователей (только чтение)
type Profile struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// TableName определяет имя таблицы для GORM
func (Profile) TableName() string {
	return "users"
}
