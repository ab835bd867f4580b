package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable - хранилище недоступно (нет соединения, таймаут).
	// Вызывающая сторона может безопасно повторить запрос.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvariantViolated - хранилище нарушило ожидаемый инвариант
	// (например, проиграна гонка за уникальный индекс). Повторяется один раз, затем возвращается.
	ErrInvariantViolated = errors.New("storage invariant violated")
)
