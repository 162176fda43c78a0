// Package events предоставляет реализации EventPublisher.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig конфигурация retry для публикатора
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig возвращает конфигурацию retry по умолчанию
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// publishWithRetry вызывает обработчик с экспоненциальной задержкой между попытками
func publishWithRetry(ctx context.Context, config *RetryConfig, event Event, handler EventHandler) error {
	if config == nil {
		return handler.Handle(ctx, event)
	}
	return Retry(ctx, *config, func(ctx context.Context) error {
		return handler.Handle(ctx, event)
	})
}

// Retry выполняет fn до MaxAttempts раз с экспоненциальной задержкой
func Retry(ctx context.Context, config RetryConfig, fn func(context.Context) error) error {
	if config.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * config.BackoffMultiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// MultiPublisher публикует событие во все вложенные публикаторы
type MultiPublisher []EventPublisher

// Publish публикует событие; ошибки всех публикаторов объединяются
func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
