package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/dha2608/MLN-AI/internal/pkg/errors"
)

// storageCall выполняет операцию с хранилищем с ограничением по времени.
// ErrInvariantViolated повторяется ровно один раз, затем возвращается вызывающему.
func storageCall(ctx context.Context, timeout time.Duration, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	err := callWithTimeout(ctx, timeout, fn)
	if errors.Is(err, apperrors.ErrInvariantViolated) {
		logger.Warn("Нарушен инвариант хранилища, повторяем операцию", zap.String("op", op), zap.Error(err))
		err = callWithTimeout(ctx, timeout, fn)
	}
	return err
}

func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
