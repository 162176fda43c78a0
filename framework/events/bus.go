// Package events предоставляет реализацию EventBus.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventMiddleware middleware для событий
type EventMiddleware func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// InMemoryEventBus синхронная шина событий в памяти.
// Обработчики одного типа события вызываются последовательно в порядке подписки.
type InMemoryEventBus struct {
	handlers   map[string][]subscription
	nextID     uint64
	middleware []EventMiddleware
	retry      *RetryConfig
	mu         sync.RWMutex
	wg         sync.WaitGroup // для отслеживания активных публикаций
	stopped    bool
}

// NewInMemoryEventBus создает новую шину событий
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[string][]subscription),
	}
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryEventBus) WithMiddleware(middleware EventMiddleware) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// WithRetry включает повторные вызовы обработчиков
func (b *InMemoryEventBus) WithRetry(config RetryConfig) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retry = &config
	return b
}

// Subscribe подписывается на тип события
func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) (func(), error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() { b.unsubscribe(eventType, id) }, nil
}

func (b *InMemoryEventBus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish публикует событие
func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is stopped")
	}
	subs := append([]subscription(nil), b.handlers[event.EventType()]...)
	middleware := append([]EventMiddleware(nil), b.middleware...)
	retry := b.retry
	b.wg.Add(1)
	b.mu.RUnlock()
	defer b.wg.Done()

	next := func(ctx context.Context, event Event) error {
		var errs []error
		for _, s := range subs {
			if err := publishWithRetry(ctx, retry, event, s.handler); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, event Event) error {
			return mw(ctx, event, prevNext)
		}
	}

	if err := next(ctx, event); err != nil {
		return fmt.Errorf("publish %s failed: %w", event.EventType(), err)
	}
	return nil
}

// Shutdown корректно завершает работу шины
func (b *InMemoryEventBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	// Ждем завершения всех активных публикаций
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("shutdown timeout after waiting for active publications")
	}
}
