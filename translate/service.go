// Package translate turns extracted strings into translated strings through
// an external provider: cache lookup, retry with exponential backoff, and a
// bounded worker pool that keeps every result bound to its input index.
//
// Provider failures never cross this package's boundary. A string that
// cannot be translated comes back unchanged.
package translate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultMaxRetries     = 3
	DefaultMaxWorkers     = 3
	DefaultBackoffCap     = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// ---------------------------------------------------------------------------
// Provider contract
// ---------------------------------------------------------------------------

// Provider translates one string. An error or an empty result is a failed
// attempt.
type Provider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

// Translate calls f.
func (f ProviderFunc) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return f(ctx, text, sourceLang, targetLang)
}

// Identity returns every string unchanged. It is used for dry runs and
// round-trip checks.
var Identity Provider = ProviderFunc(func(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
})

// Cache is the subset of cache.Cache used by the service.
type Cache interface {
	Get(text string) (string, bool, error)
	Put(text, translated string) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Options configures a Service.
type Options struct {
	SourceLang string
	TargetLang string
	// MaxRetries is the number of provider attempts per string.
	MaxRetries int
	// BackoffCap bounds the wait between attempts.
	BackoffCap time.Duration
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration
	// RequestDelay is the delay between launching batch tasks.
	RequestDelay time.Duration
	Logger       *zap.Logger
	// Sleep waits between attempts; it must return early when ctx is done.
	// Tests replace it to observe backoff without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Counters reports what a Service did.
type Counters struct {
	CacheHits   int64
	Calls       int64
	Failures    int64
	Translated  int64
	Passthrough int64
}

// Service is safe for concurrent use.
type Service struct {
	provider Provider
	cache    Cache
	opts     Options
	logger   *zap.Logger

	hits, calls, failures, translated, passthrough atomic.Int64
}

// NewService builds a Service. c may be nil to disable caching.
func NewService(p Provider, c Cache, opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: p, cache: c, opts: opts, logger: logger}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait after failed attempt n (0-based):
// min(2^n seconds, limit).
func Backoff(n int, limit time.Duration) time.Duration {
	wait := time.Duration(math.Pow(2, float64(n))) * time.Second
	if wait > limit || wait <= 0 {
		return limit
	}
	return wait
}

// Counters returns a snapshot of the service counters.
func (s *Service) Counters() Counters {
	return Counters{
		CacheHits:   s.hits.Load(),
		Calls:       s.calls.Load(),
		Failures:    s.failures.Load(),
		Translated:  s.translated.Load(),
		Passthrough: s.passthrough.Load(),
	}
}

// MaxRetries returns the configured attempt count.
func (s *Service) MaxRetries() int { return s.opts.MaxRetries }

// RequestTimeout is the deadline applied to each provider call.
func (s *Service) RequestTimeout() time.Duration { return s.opts.RequestTimeout }

// TranslateWithRetry returns the translation of text, or text itself when
// every attempt failed. Only non-empty results are cached.
func (s *Service) TranslateWithRetry(ctx context.Context, text string, maxRetries int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if maxRetries <= 0 {
		maxRetries = s.opts.MaxRetries
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(text)
		if err != nil {
			s.logger.Warn("cache read failed", zap.Error(err))
		} else if ok {
			s.hits.Add(1)
			return cached
		}
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		out, err := s.call(ctx, text)
		if err == nil && strings.TrimSpace(out) != "" {
			if s.cache != nil {
				if err := s.cache.Put(text, out); err != nil {
					s.logger.Warn("cache write failed", zap.Error(err))
				}
			}
			s.translated.Add(1)
			return out
		}
		if err == nil {
			err = fmt.Errorf("empty translation")
		}
		s.failures.Add(1)
		s.logger.Debug("translation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max", maxRetries),
			zap.String("text", truncate(text, 60)),
			zap.Error(err))

		if attempt < maxRetries-1 {
			if err := s.opts.Sleep(ctx, Backoff(attempt, s.opts.BackoffCap)); err != nil {
				break
			}
		}
	}

	s.passthrough.Add(1)
	s.logger.Warn("translation failed, keeping original",
		zap.String("text", truncate(text, 60)),
		zap.Int("attempts", maxRetries))
	return text
}

func (s *Service) call(ctx context.Context, text string) (string, error) {
	s.calls.Add(1)
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	return s.provider.Translate(callCtx, text, s.opts.SourceLang, s.opts.TargetLang)
}

// TranslateBatch translates texts on a pool of at most maxWorkers
// goroutines. out[i] always corresponds to texts[i]. A task that panics
// yields its original text; when ctx is cancelled the undispatched texts are
// returned untranslated.
func (s *Service) TranslateBatch(ctx context.Context, texts []string, maxWorkers int) []string {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	out := make([]string, len(texts))
	copy(out, texts)

	forEachIndex(ctx, len(texts), maxWorkers, s.opts.RequestDelay, func(ctx context.Context, i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				out[i] = texts[i]
				s.logger.Error("translation task panicked",
					zap.Int("index", i),
					zap.Any("panic", r))
				err = fmt.Errorf("task %d panicked: %v", i, r)
			}
		}()
		out[i] = s.TranslateWithRetry(ctx, texts[i], s.opts.MaxRetries)
		return nil
	})

	return out
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
