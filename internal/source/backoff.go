package source

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/livetemplate/storefront/internal/config"
)

// FetchFunc is one fetch attempt.
type FetchFunc func(ctx context.Context) (Rows, error)

// Backoff retries transient feed failures with exponential delays and
// ±20% jitter.
type Backoff struct {
	Retries int // Attempts after the first one
	Base    time.Duration
	Max     time.Duration
	Factor  float64
	Quiet   bool
}

// BackoffFor returns the retry policy configured for a feed.
func BackoffFor(cfg config.SourceConfig) Backoff {
	return Backoff{
		Retries: cfg.GetRetryMaxRetries(),
		Base:    cfg.GetRetryBaseDelay(),
		Max:     cfg.GetRetryMaxDelay(),
		Factor:  2,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. An error returned after the budget is spent is
// marked so nothing upstream retries it again.
func (b Backoff) Do(ctx context.Context, feed string, fn FetchFunc) (Rows, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				b.logf("[Catalog] Feed %s recovered on attempt %d", feed, attempt+1)
			}
			return rows, nil
		}
		if !shouldRetry(err) {
			return nil, err
		}
		if attempt >= b.Retries {
			b.logf("[Catalog] Feed %s failed %d times: %v", feed, attempt+1, err)
			return nil, spent(feed, err)
		}

		wait := b.delay(attempt)
		b.logf("[Catalog] Feed %s attempt %d failed (%v), retrying in %v", feed, attempt+1, err, wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if max := float64(b.Max); d > max {
		d = max
	}
	return time.Duration(d * (0.8 + rand.Float64()*0.4))
}

func (b Backoff) logf(format string, args ...any) {
	if !b.Quiet {
		log.Printf(format, args...)
	}
}

func spent(feed string, err error) error {
	var fe *FeedError
	if !errors.As(err, &fe) {
		fe = fetchError(feed, "fetch", err)
		err = fe
	}
	fe.exhausted = true
	return err
}
