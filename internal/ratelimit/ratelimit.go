// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit spaces outbound calls to external APIs and retries calls
// that fail with a quota error.
//
// A Limiter keeps one gate per target ("gemini", "tavily", ...). Each gate
// remembers the time of its last grant; Acquire blocks until MinInterval has
// elapsed since that grant. Gates are serialised, so the spacing holds for
// concurrent callers and across sessions sharing one Limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrRateLimitExceeded is returned by Do when every attempt failed with a
// quota error. Callers treat it as non-fatal and degrade to fallback data.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Observer receives limiter activity. internal/metrics implements it.
type Observer interface {
	ObserveWait(target string, wait time.Duration)
	ObserveRetry(target string)
	ObserveExhausted(target string)
}

type nopObserver struct{}

func (nopObserver) ObserveWait(string, time.Duration) {}
func (nopObserver) ObserveRetry(string)               {}
func (nopObserver) ObserveExhausted(string)           {}

// gate serialises grants for one target. The token channel acts as a
// context-aware mutex.
type gate struct {
	token   chan struct{}
	last    time.Time
	granted bool
}

func newGate() *gate {
	g := &gate{token: make(chan struct{}, 1)}
	g.token <- struct{}{}
	return g
}

// Limiter enforces per-target call spacing. The zero value is not usable;
// construct with New.
type Limiter struct {
	cfg      types.RateLimitConfig
	log      *zap.Logger
	observer Observer

	mu    sync.Mutex
	gates map[string]*gate
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for wait and retry messages.
func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// WithObserver attaches an observer for waits, retries and exhaustion.
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		if o != nil {
			l.observer = o
		}
	}
}

// New creates a Limiter. Non-positive MaxAttempts is treated as 1.
func New(cfg types.RateLimitConfig, opts ...Option) *Limiter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	l := &Limiter{
		cfg:      cfg,
		log:      zap.NewNop(),
		observer: nopObserver{},
		gates:    make(map[string]*gate),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() types.RateLimitConfig {
	return l.cfg
}

func (l *Limiter) gateFor(target string) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[target]
	if !ok {
		g = newGate()
		l.gates[target] = g
	}
	return g
}

// Acquire blocks until MinInterval has elapsed since the previous grant for
// target and returns the time of this grant. It returns ctx.Err() if the
// context ends first; a cancelled waiter does not consume a grant.
func (l *Limiter) Acquire(ctx context.Context, target string) (time.Time, error) {
	g := l.gateFor(target)

	select {
	case <-g.token:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { g.token <- struct{}{} }()

	if g.granted {
		if wait := time.Until(g.last.Add(l.cfg.MinInterval)); wait > 0 {
			l.log.Debug("rate limit wait", zap.String("target", target), zap.Duration("wait", wait))
			l.observer.ObserveWait(target, wait)
			if err := sleep(ctx, wait); err != nil {
				return time.Time{}, err
			}
		}
	}

	now := time.Now()
	g.last = now
	g.granted = true
	return now, nil
}

// Do acquires a grant for target and calls fn. When fn fails with a quota
// error, Do waits RetryDelay and tries again, up to MaxAttempts attempts in
// total. Exhaustion returns an error wrapping ErrRateLimitExceeded and the
// last quota error. Other errors are returned as-is without retrying.
func (l *Limiter) Do(ctx context.Context, target string, fn func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			l.observer.ObserveRetry(target)
			l.log.Info("quota exceeded, retrying",
				zap.String("target", target),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", l.cfg.MaxAttempts),
				zap.Duration("delay", l.cfg.RetryDelay))
			if err := sleep(ctx, l.cfg.RetryDelay); err != nil {
				return err
			}
		}

		if _, err := l.Acquire(ctx, target); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsQuotaError(err) {
			return err
		}
		last = err
	}

	l.observer.ObserveExhausted(target)
	l.log.Warn("rate limit retries exhausted", zap.String("target", target), zap.Error(last))
	return fmt.Errorf("%s: %w after %d attempts: %w", target, ErrRateLimitExceeded, l.cfg.MaxAttempts, last)
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, l *Limiter, target string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, target, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
