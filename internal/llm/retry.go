package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/coursemap/internal/course"
)

// RetryOptions bounds each collaborator call.
type RetryOptions struct {
	CallTimeout time.Duration
	MaxAttempts int
	// InitialInterval and MaxInterval default to 500ms and 10s.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying runs every call of the wrapped provider under a per-attempt
// timeout and retries transient failures with exponential backoff. Errors
// that survive all attempts are wrapped with course.ErrTransport.
type Retrying struct {
	next   Provider
	opts   RetryOptions
	logger *slog.Logger
}

func WithRetry(p Provider, opts RetryOptions, logger *slog.Logger) *Retrying {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: p, opts: opts, logger: logger}
}

func (r *Retrying) Name() string   { return r.next.Name() }
func (r *Retrying) Dimension() int { return r.next.Dimension() }

func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		vecs, err := r.next.Embed(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	return out, err
}

func (r *Retrying) Generate(ctx context.Context, instruction, input string) (string, error) {
	var out string
	err := r.do(ctx, "generate", func(ctx context.Context) error {
		text, err := r.next.Generate(ctx, instruction, input)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// Health is not retried; it reports the current state.
func (r *Retrying) Health(ctx context.Context) error {
	if err := r.next.Health(ctx); err != nil {
		return fmt.Errorf("%w: %w", course.ErrTransport, err)
	}
	return nil
}

func (r *Retrying) do(ctx context.Context, op string, call func(context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("provider call failed, retrying",
			"provider", r.next.Name(), "op", op, "attempt", attempts, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("%w: %s %s failed after %d attempt(s): %w", course.ErrTransport, r.next.Name(), op, attempts, err)
	}
	return nil
}
