// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrHostNotAllowed is returned for absolute URLs naming a host the edge
// does not fetch from. It is a client error, never a network error.
var ErrHostNotAllowed = errors.New("host not allowed")

// HostPolicy is the set of hosts the edge may fetch from: the origin and the
// image host. Origin-form URLs ("/path") always resolve to the origin and are
// allowed. The zero value allows origin-form URLs only.
type HostPolicy struct {
	allowed map[string]struct{}
}

// NewHostPolicy allows the scheme default port (or explicit port) of
// originURL's host, plus each of hosts. A host given without a port is
// allowed on 80 and 443 only.
func NewHostPolicy(originURL string, hosts ...string) (HostPolicy, error) {
	p := HostPolicy{allowed: make(map[string]struct{})}

	origin, err := url.Parse(originURL)
	if err != nil {
		return HostPolicy{}, fmt.Errorf("parse origin url: %w", err)
	}
	key, ok := hostKey(origin.Scheme, origin.Host)
	if !ok || (origin.Scheme != "http" && origin.Scheme != "https") {
		return HostPolicy{}, fmt.Errorf("origin url %q has no http(s) host", originURL)
	}
	p.allowed[key] = struct{}{}

	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(h); err == nil {
			if key, ok := hostKey("", h); ok {
				p.allowed[key] = struct{}{}
			}
			continue
		}
		for _, scheme := range []string{"http", "https"} {
			if key, ok := hostKey(scheme, h); ok {
				p.allowed[key] = struct{}{}
			}
		}
	}
	return p, nil
}

// AllowsURL reports whether u may be fetched.
func (p HostPolicy) AllowsURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	key, ok := hostKey(u.Scheme, u.Host)
	if !ok {
		return false
	}
	_, allowed := p.allowed[key]
	return allowed
}

// Check returns ErrHostNotAllowed (wrapped) when u may not be fetched.
func (p HostPolicy) Check(u *url.URL) error {
	if p.AllowsURL(u) {
		return nil
	}
	host := ""
	if u != nil {
		host = u.Host
	}
	return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}

// hostKey normalizes host[:port] to "host:port", filling the port from the
// scheme. An empty scheme requires an explicit port.
func hostKey(scheme, hostport string) (string, bool) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = strings.Trim(hostport, "[]"), ""
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", false
	}
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", false
		}
	}
	return net.JoinHostPort(host, port), true
}
