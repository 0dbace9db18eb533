package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// DefaultCooldown is how long a rate-limited provider is skipped.
const DefaultCooldown = 60 * time.Second

// FailoverOptions tune the chain. Zero values take the defaults.
type FailoverOptions struct {
	Cooldown time.Duration
	// Attempts is how many passes over the chain are made before giving up.
	Attempts   int
	RetryDelay time.Duration
	// TripAfter consecutive failures opens a provider's circuit breaker.
	TripAfter   int
	BreakerOpen time.Duration
	Clock       func() time.Time
}

func (o FailoverOptions) withDefaults() FailoverOptions {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Attempts <= 0 {
		o.Attempts = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.TripAfter <= 0 {
		o.TripAfter = 3
	}
	if o.BreakerOpen <= 0 {
		o.BreakerOpen = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type link struct {
	provider Provider
	breaker  circuitbreaker.CircuitBreaker[string]
	// coolUntil is guarded by Failover.mu.
	coolUntil time.Time
}

// Failover tries providers in order. A rate-limited provider is skipped
// until its cooldown passes; a provider that keeps failing is cut off by its
// circuit breaker. When no provider answers, Generate returns an error
// wrapping chat.ErrUnavailable. When every provider tried answered blank,
// the error wraps chat.ErrEmptyResponse instead, so callers can repair.
type Failover struct {
	links  []*link
	opts   FailoverOptions
	retry  retry.Retry[string]
	logger *slog.Logger
	mu     sync.Mutex
}

var _ Provider = (*Failover)(nil)

// errChainFailed marks a pass where at least one provider was tried and
// failed. It is worth another pass.
var errChainFailed = errors.New("every provider failed")

// errChainCooling marks a pass where every provider was skipped.
var errChainCooling = errors.New("every provider is cooling down")

// errChainEmpty marks a pass where every provider tried answered blank.
var errChainEmpty = errors.New("every provider answered blank")

func NewFailover(providers []Provider, opts FailoverOptions, logger *slog.Logger) *Failover {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	f := &Failover{
		opts:   opts,
		logger: logger,
		retry: retry.New[string](retry.Config{
			MaxAttempts:        opts.Attempts,
			InitialDelay:       opts.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{errChainCooling, errChainEmpty, chat.ErrUnavailable, context.Canceled, context.DeadlineExceeded},
		}),
	}
	trip := uint32(opts.TripAfter) // #nosec G115 -- positive after defaults
	for _, p := range providers {
		f.links = append(f.links, &link{
			provider: p,
			breaker: circuitbreaker.New[string](circuitbreaker.Config{
				MaxRequests: 1,
				// A blank answer still proves the provider is reachable.
				IsSuccessful: func(err error) bool {
					return err == nil || errors.Is(err, chat.ErrEmptyResponse)
				},
				Interval: opts.BreakerOpen,
				Timeout:  opts.BreakerOpen,
				ReadyToTrip: func(counts circuitbreaker.Counts) bool {
					return counts.ConsecutiveFailures >= trip
				},
			}),
		})
	}
	return f
}

func (f *Failover) Name() string {
	return "failover"
}

// Providers returns the chain's provider names in order.
func (f *Failover) Providers() []string {
	names := make([]string, len(f.links))
	for i, l := range f.links {
		names[i] = l.provider.Name()
	}
	return names
}

func (f *Failover) Generate(ctx context.Context, r chat.Request) (string, error) {
	if len(f.links) == 0 {
		return "", fmt.Errorf("%w: no providers configured", chat.ErrUnavailable)
	}
	text, err := f.retry.Do(ctx, func(ctx context.Context) (string, error) {
		return f.pass(ctx, r)
	})
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, chat.ErrUnavailable) || errors.Is(err, errChainEmpty) {
		return "", err
	}
	return "", fmt.Errorf("%w: %w", chat.ErrUnavailable, err)
}

// pass walks the chain once.
func (f *Failover) pass(ctx context.Context, r chat.Request) (string, error) {
	// failed keeps blank answers as text only, so a mixed pass never
	// matches chat.ErrEmptyResponse.
	var failed, blanks []error
	tried := 0
	for _, l := range f.links {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := l.provider.Name()
		if f.cooling(l) {
			continue
		}
		tried++
		text, err := l.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return l.provider.Generate(ctx, r)
		})
		if err == nil {
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, chat.ErrEmptyResponse) {
			blanks = append(blanks, err)
			failed = append(failed, errors.New(err.Error()))
			f.logger.Warn("Provider answered blank, trying next", "provider", name)
			continue
		}
		failed = append(failed, err)
		if errors.Is(err, chat.ErrRateLimited) {
			f.coolDown(l)
			f.logger.Warn("Provider rate limited, cooling down",
				"provider", name,
				"cooldown", f.opts.Cooldown)
			continue
		}
		f.logger.Warn("Provider failed, trying next", "provider", name, "error", err)
	}
	if tried == 0 {
		return "", fmt.Errorf("%w: %w", chat.ErrUnavailable, errChainCooling)
	}
	if len(blanks) == tried {
		return "", fmt.Errorf("%w: %w", errChainEmpty, errors.Join(blanks...))
	}
	return "", fmt.Errorf("%w: %w", errChainFailed, errors.Join(failed...))
}

func (f *Failover) cooling(l *link) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts.Clock().Before(l.coolUntil)
}

func (f *Failover) coolDown(l *link) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.coolUntil = f.opts.Clock().Add(f.opts.Cooldown)
}
