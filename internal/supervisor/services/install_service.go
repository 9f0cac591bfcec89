// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/cinescope/internal/logging"
)

// Installer is satisfied by *worker.Worker.
type Installer interface {
	Install(ctx context.Context) error
	SkipWaiting(ctx context.Context) error
}

// InstallService installs and activates the worker once at startup. A
// failed install is returned as an error, so suture retries it with its
// failure backoff until the precache manifest can be fetched. Once the
// worker is active the service finishes with suture.ErrDoNotRestart.
type InstallService struct {
	worker Installer
	name   string
}

// NewInstallService wraps w.
func NewInstallService(w Installer) *InstallService {
	return &InstallService{worker: w, name: "worker-install"}
}

// Serve implements suture.Service.
func (s *InstallService) Serve(ctx context.Context) error {
	if err := s.worker.Install(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Msg("Worker install failed, will retry")
		return fmt.Errorf("install: %w", err)
	}
	// Install leaves the worker waiting when activation failed; retry it.
	if err := s.worker.SkipWaiting(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return suture.ErrDoNotRestart
}

func (s *InstallService) String() string {
	return s.name
}
