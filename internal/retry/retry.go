package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy описывает политику повторов для ненадежной операции
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	JitterMax      time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy — значения по умолчанию для загрузки чанков
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		JitterMax:      time.Second,
		AttemptTimeout: 5 * time.Minute,
	}
}

// Error сохраняет количество сделанных попыток вместе с последней ошибкой
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Do выполняет op до первого успеха, но не более MaxAttempts раз.
// Пауза перед попыткой k+1 равна BaseDelay*2^(k-1) плюс случайный джиттер
// до JitterMax. AttemptTimeout ограничивает каждую попытку отдельно.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}

		lastErr = op(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return &Error{Attempts: attempt, Err: err}
		}

		if attempt == p.MaxAttempts {
			break
		}

		if err := p.sleep(ctx, attempt); err != nil {
			return &Error{Attempts: attempt, Err: err}
		}
	}

	return &Error{Attempts: p.MaxAttempts, Err: lastErr}
}

func (p Policy) sleep(ctx context.Context, attempt int) error {
	delay := p.BaseDelay << (attempt - 1)
	if p.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(p.JitterMax)))
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
