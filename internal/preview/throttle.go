package preview

import (
	"context"
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// Throttler coalesces bursts of editor updates. Pending partial fields are
// merged, latest value wins, and the result is sent when the limiter allows.
type Throttler struct {
	editor  *Editor
	limiter *rate.Limiter

	mu      sync.Mutex
	pending UpdatePayload

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewThrottler sends at most perSecond updates per second with the given
// burst.
func NewThrottler(e *Editor, perSecond float64, burst int) *Throttler {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Throttler{
		editor:  e,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.loop()
	return t
}

// Update queues u for the next flush.
func (t *Throttler) Update(u UpdatePayload) {
	if u.Empty() {
		return
	}
	t.mu.Lock()
	t.pending = t.pending.Merge(u)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Flush sends the pending update now, ignoring the limiter.
func (t *Throttler) Flush(ctx context.Context) error {
	u := t.take()
	if u.Empty() {
		return nil
	}
	return t.editor.Update(ctx, u)
}

// Stop ends the background loop. An update still pending afterwards is only
// sent by Flush.
func (t *Throttler) Stop() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}

func (t *Throttler) take() UpdatePayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.pending
	t.pending = UpdatePayload{}
	return u
}

func (t *Throttler) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.wake:
		}

		if err := t.limiter.Wait(t.ctx); err != nil {
			return
		}
		u := t.take()
		if u.Empty() {
			continue
		}
		// Once taken, an update is sent even if Stop races with it.
		if err := t.editor.Update(context.Background(), u); err != nil {
			log.Printf("[Preview] Throttled update failed: %v", err)
		}
	}
}
