// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package cachestore

import "strings"

// Kind is the logical purpose of a store.
type Kind string

const (
	KindStatic  Kind = "static"
	KindRuntime Kind = "runtime"
	KindImages  Kind = "images"
	KindAPI     Kind = "api"
)

// Kinds lists every store kind.
var Kinds = []Kind{KindStatic, KindRuntime, KindImages, KindAPI}

// Names derives versioned store names:
// <prefix>-<version>, <prefix>-runtime-<version>, <prefix>-images-<version>, <prefix>-api-<version>.
type Names struct {
	Prefix  string
	Version string
}

// For returns the store name for kind.
func (n Names) For(kind Kind) string {
	if kind == KindStatic {
		return n.Prefix + "-" + n.Version
	}
	return n.Prefix + "-" + string(kind) + "-" + n.Version
}

// Static returns the precache store name.
func (n Names) Static() string { return n.For(KindStatic) }

// Runtime returns the runtime store name.
func (n Names) Runtime() string { return n.For(KindRuntime) }

// Images returns the image store name.
func (n Names) Images() string { return n.For(KindImages) }

// API returns the API response store name.
func (n Names) API() string { return n.For(KindAPI) }

// All returns the four store names of the current version.
func (n Names) All() []string {
	all := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		all = append(all, n.For(k))
	}
	return all
}

// IsCurrent reports whether name belongs to the current version. Any store
// whose name does not contain the version tag is stale.
func (n Names) IsCurrent(name string) bool {
	return strings.Contains(name, n.Version)
}
