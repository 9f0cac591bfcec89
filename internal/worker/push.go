// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package worker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// Notification defaults.
const (
	DefaultNotificationTitle = "CineScope+"
	DefaultNotificationBody  = "New activity on CineScope+"
	DefaultNotificationURL   = "/"

	notificationIcon  = "/icons/icon-192x192.png"
	notificationBadge = "/icons/icon-72x72.png"
)

// Notification actions.
const (
	ActionView  = "view"
	ActionClose = "close"
)

// PushPayload is the JSON body of a push message. Every field is optional.
type PushPayload struct {
	Title string `json:"title,omitempty" validate:"max=200"`
	Body  string `json:"body,omitempty" validate:"max=1000"`
	URL   string `json:"url,omitempty" validate:"omitempty,fetchurl"`
}

// NotificationAction is a button on a notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationData travels with the notification and comes back on click.
type NotificationData struct {
	URL string `json:"url"`
}

// Notification is what pages are asked to display.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Vibrate []int                `json:"vibrate"`
	Data    NotificationData     `json:"data"`
	Actions []NotificationAction `json:"actions"`
}

// ParsePush decodes a push body. An empty body means all defaults.
func ParsePush(raw []byte) (PushPayload, error) {
	var p PushPayload
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode push payload: %w", err)
	}
	return p, nil
}

// Push builds the notification for p and delivers it to connected pages.
func (w *Worker) Push(ctx context.Context, p PushPayload) Notification {
	n := Notification{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    notificationIcon,
		Badge:   notificationBadge,
		Vibrate: []int{100, 50, 100},
		Data:    NotificationData{URL: p.URL},
		Actions: []NotificationAction{
			{Action: ActionView, Title: "View"},
			{Action: ActionClose, Title: "Close"},
		},
	}
	if n.Title == "" {
		n.Title = DefaultNotificationTitle
	}
	if n.Body == "" {
		n.Body = DefaultNotificationBody
	}
	if n.Data.URL == "" {
		n.Data.URL = DefaultNotificationURL
	}

	w.deps.Notifier.BroadcastJSON(MessageNotification, n)
	metrics.RecordWorkerEvent("push", nil)
	logging.Ctx(ctx).Debug().Str("title", n.Title).Str("url", n.Data.URL).Msg("Notification delivered")
	return n
}

// NotificationClick handles a click on a notification. The close action
// only dismisses it; any other action, including a click on the body,
// opens the notification's URL. It reports whether a window was opened.
func (w *Worker) NotificationClick(ctx context.Context, action string, data NotificationData) bool {
	metrics.RecordWorkerEvent("notificationclick", nil)
	if action == ActionClose {
		return false
	}
	url := data.URL
	if url == "" {
		url = DefaultNotificationURL
	}
	w.deps.Notifier.BroadcastJSON(MessageOpenWindow, map[string]string{"url": url})
	logging.Ctx(ctx).Debug().Str("action", action).Str("url", url).Msg("Opening window for notification")
	return true
}
