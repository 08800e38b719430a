// Package notify tells the shop team when a new layout goes live.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/store"
)

// Notifier is a publish notification destination.
type Notifier interface {
	// Name returns the destination kind, e.g. "slack" or "email".
	Name() string

	// Send delivers the event. The context bounds the whole delivery.
	Send(ctx context.Context, ev Event) error
}

// Event describes one successful publish.
type Event struct {
	Shop    string
	Version int64
	By      string
	At      time.Time
	Home    int // Top-level home blocks, -1 when the layout could not be read
	Footer  int
}

// EventFor builds the event for a freshly published live record.
func EventFor(shop string, rec *store.Record) Event {
	ev := Event{
		Shop:    shop,
		Version: rec.Version,
		By:      rec.UpdatedBy,
		At:      rec.UpdatedAt,
		Home:    -1,
		Footer:  -1,
	}
	if home, err := rec.HomeBlocks(); err == nil {
		ev.Home = len(home)
	}
	if footer, err := rec.FooterBlocks(); err == nil {
		ev.Footer = len(footer)
	}
	return ev
}

// Message renders the event as a one-line plain text notification.
func (e Event) Message() string {
	msg := fmt.Sprintf("%s published a new storefront layout (version %d)", e.Shop, e.Version)
	if e.By != "" {
		msg = fmt.Sprintf("%s published a new storefront layout (version %d, by %s)", e.Shop, e.Version, e.By)
	}
	if e.Home >= 0 && e.Footer >= 0 {
		msg += fmt.Sprintf(": %d home blocks, %d footer blocks", e.Home, e.Footer)
	}
	return msg
}

// Dispatcher fans publish events out to every configured notifier.
type Dispatcher struct {
	shop      string
	notifiers []Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

// New builds a dispatcher from the notify section of the config.
func New(shop string, cfgs []config.NotifyConfig) (*Dispatcher, error) {
	d := &Dispatcher{shop: shop, timeout: 15 * time.Second}
	for i, c := range cfgs {
		var (
			n   Notifier
			err error
		)
		switch c.Type {
		case "slack":
			n, err = NewSlack(c.Channel, c.GetWebhookURL())
		case "email":
			n, err = NewEmail(c.To, c.Subject)
		default:
			err = fmt.Errorf("unsupported type %q", c.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("notify[%d]: %w", i, err)
		}
		d.Add(n)
	}
	return d, nil
}

// Add registers another notifier.
func (d *Dispatcher) Add(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Len returns the number of notifiers.
func (d *Dispatcher) Len() int {
	return len(d.notifiers)
}

// Send delivers ev to every notifier and joins their errors.
func (d *Dispatcher) Send(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range d.notifiers {
		if err := n.Send(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Attach sends an event in the background after every publish on cs.
// Delivery failures are logged and never fail the publish.
func (d *Dispatcher) Attach(cs *store.ConfigStore) {
	cs.OnPublish(func(rec *store.Record) {
		ev := EventFor(d.shop, rec)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.Send(ctx, ev); err != nil {
				log.Printf("[Notify] Publish notification failed: %v", err)
				return
			}
			log.Printf("[Notify] Announced version %d to %d target(s)", ev.Version, len(d.notifiers))
		}()
	})
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
