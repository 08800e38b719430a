package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a feed failure.
type Kind int

const (
	KindFetch       Kind = iota // Query or request failed, retried when the cause looks transient
	KindConfig                  // Feed is misconfigured
	KindData                    // Feed answered with something that is not a row list
	KindConnect                 // Backend unreachable
	KindTimeout                 // Fetch exceeded the feed timeout
	KindHTTP                    // REST feed answered with a non-2xx status
	KindUnavailable             // Breaker is open after repeated outages
)

// FeedError is returned by every catalog feed.
type FeedError struct {
	Feed   string
	Kind   Kind
	Op     string // e.g. "query", "read file", "invalid url"
	Status int    // HTTP status, KindHTTP only
	Err    error

	exhausted bool
}

func (e *FeedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "catalog feed %q", e.Feed)
	switch {
	case e.Kind == KindHTTP:
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
	case e.Kind == KindUnavailable:
		b.WriteString(": disabled after repeated failures")
	case e.Op != "":
		b.WriteString(": " + e.Op)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt right now could succeed.
// Errors that already went through the retry budget are never retryable.
func (e *FeedError) Retryable() bool {
	return !e.exhausted && e.transient()
}

// transient reports whether the failure says the backend is struggling
// rather than that the feed or its data is wrong.
func (e *FeedError) transient() bool {
	switch e.Kind {
	case KindConnect, KindTimeout:
		return true
	case KindHTTP:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	case KindFetch:
		return transientCause(e.Err)
	}
	return false
}

func configError(feed, field, reason string) *FeedError {
	return &FeedError{Feed: feed, Kind: KindConfig, Op: "invalid " + field, Err: errors.New(reason)}
}

func dataError(feed, reason string) *FeedError {
	return &FeedError{Feed: feed, Kind: KindData, Op: "unreadable rows", Err: errors.New(reason)}
}

func fetchError(feed, op string, err error) *FeedError {
	return &FeedError{Feed: feed, Kind: KindFetch, Op: op, Err: err}
}

func connectError(feed, target string, err error) *FeedError {
	return &FeedError{Feed: feed, Kind: KindConnect, Op: "connect to " + target, Err: err}
}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporary failure",
	"try again",
	"service unavailable",
	"bad gateway",
}

func transientCause(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// shouldRetry decides whether the backoff loop tries again.
func shouldRetry(err error) bool {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return transientCause(err)
}

// isOutage decides whether the breaker counts err. Exhausted retries still
// count, misconfiguration and bad data do not.
func isOutage(err error) bool {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.transient()
	}
	return transientCause(err)
}

// EditorMessage returns a message about a feed failure that is safe to show
// to store editors.
func EditorMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FeedError
	if !errors.As(err, &fe) {
		return "Failed to load catalog data. Please try again."
	}
	switch fe.Kind {
	case KindUnavailable:
		return fmt.Sprintf("Catalog feed %q is temporarily unavailable. Please try again later.", fe.Feed)
	case KindHTTP:
		switch {
		case fe.Status == http.StatusUnauthorized || fe.Status == http.StatusForbidden:
			return fmt.Sprintf("Catalog feed %q rejected our credentials.", fe.Feed)
		case fe.Status == http.StatusNotFound:
			return fmt.Sprintf("Catalog feed %q was not found at its configured URL.", fe.Feed)
		case fe.Status == http.StatusTooManyRequests:
			return fmt.Sprintf("Catalog feed %q is rate limiting requests. Please slow down.", fe.Feed)
		case fe.Status >= 500:
			return fmt.Sprintf("Catalog feed %q is having server trouble. Please try again later.", fe.Feed)
		}
		return fmt.Sprintf("Catalog feed %q answered HTTP %d.", fe.Feed, fe.Status)
	case KindTimeout:
		return fmt.Sprintf("Catalog feed %q timed out. Please try again.", fe.Feed)
	case KindConnect:
		return fmt.Sprintf("Could not connect to catalog feed %q. Check its connection settings.", fe.Feed)
	case KindConfig:
		return fmt.Sprintf("Catalog feed %q is misconfigured: %v", fe.Feed, fe.Err)
	case KindData:
		return fmt.Sprintf("Catalog feed %q returned data that could not be read: %v", fe.Feed, fe.Err)
	}
	return fmt.Sprintf("Failed to load catalog feed %q. Please try again.", fe.Feed)
}
