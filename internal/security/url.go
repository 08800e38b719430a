// Package security validates URLs that blocks hand to the shopper's browser
// to frame.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateEmbedURL checks a URL used as an iframe src. Only https is allowed
// and the host may not be localhost, a private or link-local address, or
// unspecified, so a stored layout cannot point shoppers' browsers at
// internal services.
func ValidateEmbedURL(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("embed URL scheme must be https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("embed URL must have a host")
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" || strings.HasSuffix(hostLower, ".localhost") {
		return fmt.Errorf("embedding localhost is not allowed")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames are not resolved.
		return nil
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("embedding loopback addresses is not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("embedding private network addresses is not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("embedding link-local addresses is not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("embedding unspecified addresses is not allowed")
	}
	return nil
}
