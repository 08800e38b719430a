package source

import (
	"context"
	"log"
	"sync"
	"time"
)

// BreakerState is the position of a feed's circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Fetches pass through
	BreakerOpen                         // Fetches fail fast until the cooldown ends
	BreakerHalfOpen                     // Probing whether the feed is back
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes when a breaker opens and how it recovers.
type BreakerConfig struct {
	Threshold int           // Outages within Window that open the breaker
	Trials    int           // Successful half-open fetches that close it again
	Cooldown  time.Duration // Time spent open before probing
	Window    time.Duration
}

// DefaultBreakerConfig opens after 5 outages in a minute and tries again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Trials: 2, Cooldown: 30 * time.Second, Window: time.Minute}
}

// Breaker stops hammering a feed whose backend is down. Only outages count:
// a misconfigured query or an unreadable payload never opens it.
type Breaker struct {
	feed string
	cfg  BreakerConfig
	now  func() time.Time

	mu      sync.Mutex
	state   BreakerState
	outages []time.Time
	trials  int
	since   time.Time
}

func NewBreaker(feed string, cfg BreakerConfig) *Breaker {
	return &Breaker{feed: feed, cfg: cfg, now: time.Now, since: time.Now()}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, fn FetchFunc) (Rows, error) {
	if !b.allow() {
		return nil, &FeedError{Feed: b.feed, Kind: KindUnavailable}
	}
	rows, err := fn(ctx)
	b.record(err)
	return rows, err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.since) >= b.cfg.Cooldown {
		b.moveTo(BreakerHalfOpen)
	}
	return b.state != BreakerOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		if b.state == BreakerHalfOpen {
			b.trials++
			if b.trials >= b.cfg.Trials {
				b.moveTo(BreakerClosed)
			}
		} else {
			b.outages = b.outages[:0]
		}
	case isOutage(err):
		if b.state == BreakerHalfOpen {
			b.moveTo(BreakerOpen)
			return
		}
		now := b.now()
		kept := b.outages[:0]
		for _, t := range b.outages {
			if now.Sub(t) < b.cfg.Window {
				kept = append(kept, t)
			}
		}
		b.outages = append(kept, now)
		if len(b.outages) >= b.cfg.Threshold {
			b.moveTo(BreakerOpen)
		}
	}
}

func (b *Breaker) moveTo(s BreakerState) {
	if b.state == s {
		return
	}
	log.Printf("[Catalog] Feed %s breaker %s -> %s", b.feed, b.state, s)
	b.state = s
	b.since = b.now()
	b.trials = 0
	if s == BreakerClosed {
		b.outages = b.outages[:0]
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and forgets past outages.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(BreakerClosed)
	b.outages = b.outages[:0]
}
