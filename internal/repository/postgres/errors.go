package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}

// isUnavailable определяет ошибки соединения и таймауты, после которых запрос можно повторить
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isUnavailableCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isUnavailableCode(string(pqErr.Code))
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// 08xxx - connection exception, 57P0x - сервер остановлен, 53300 - too_many_connections
func isUnavailableCode(code string) bool {
	if len(code) >= 2 && code[:2] == "08" {
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03", "53300":
		return true
	}
	return false
}

// isOutOfRange определяет переполнение числового столбца (22003 numeric_value_out_of_range)
func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22003"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "22003"
	}
	return false
}

// wrapErr добавляет контекст операции и классифицирует ошибку хранилища
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// Текст ошибки драйвера наружу не уходит: ErrValidation отдаётся клиенту как есть
	if isOutOfRange(err) {
		return fmt.Errorf("%s: %w: value out of range", op, apperrors.ErrValidation)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
