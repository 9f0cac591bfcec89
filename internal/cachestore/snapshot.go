// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package cachestore

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultMaxEntryBytes bounds a cached body when no limit is configured.
const DefaultMaxEntryBytes int64 = 8 << 20

// ErrTooLarge is returned by FromResponse for bodies over the size limit.
var ErrTooLarge = errors.New("cachestore: response too large to cache")

// Snapshot is a fully buffered response stored under a request descriptor.
type Snapshot struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Key returns the descriptor the snapshot is stored under.
func (s *Snapshot) Key() string {
	return DescriptorKey(s.Method, s.URL)
}

// Date returns the response's own Date header, or StoredAt when the header
// is missing or unparsable.
func (s *Snapshot) Date() time.Time {
	if s.Header != nil {
		if raw := s.Header.Get("Date"); raw != "" {
			if t, err := http.ParseTime(raw); err == nil {
				return t
			}
		}
	}
	return s.StoredAt
}

// Age returns how old the response is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Date())
}

// Clone returns a deep copy. Callers that hand a snapshot to a background
// writer clone it first so the response writer and the store never share a buffer.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Header = s.Header.Clone()
	c.Body = append([]byte(nil), s.Body...)
	return &c
}

// Response rebuilds an *http.Response for req.
func (s *Snapshot) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(s.Status) + " " + http.StatusText(s.Status),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// FromResponse buffers resp into a snapshot keyed by method and url and
// closes the body. A body read failure is returned so callers can treat a
// truncated transfer like a failed fetch.
//
// Bodies larger than maxBytes (DefaultMaxEntryBytes when maxBytes <= 0) are
// not buffered: FromResponse returns ErrTooLarge and leaves resp.Body open and
// readable from its first byte, so the caller can stream it instead.
func FromResponse(method, url string, resp *http.Response, now time.Time, maxBytes int64) (*Snapshot, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEntryBytes
	}
	if resp.ContentLength > maxBytes {
		return nil, ErrTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		resp.Body = rewoundBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		return nil, ErrTooLarge
	}
	_ = resp.Body.Close()

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Snapshot{
		Method:   method,
		URL:      url,
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: now.UTC(),
	}, nil
}

// rewoundBody replays the bytes already read ahead of the rest of a body.
type rewoundBody struct {
	io.Reader
	io.Closer
}

// Synthesize builds a plain-text response that never came from the network.
func Synthesize(method, url string, status int, text string, now time.Time) *Snapshot {
	return &Snapshot{
		Method: method,
		URL:    url,
		Status: status,
		Header: http.Header{
			"Content-Type": []string{"text/plain; charset=utf-8"},
		},
		Body:     []byte(text),
		StoredAt: now.UTC(),
	}
}

// DescriptorKey is the store key for a request: "<METHOD> <url>".
func DescriptorKey(method, url string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + url
}
