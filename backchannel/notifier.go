/*
Copyright 2025-present the openauthn authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package backchannel notifies relying-party clients that a session has
// been terminated.  Delivery is best effort: each registered client URI
// gets one HTTP POST from a bounded worker pool, the caller waits a fixed
// overall time for stragglers, and failures are logged and dropped.  No
// retries; a client that misses a notification reconciles through its
// normal session checks.
package backchannel

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Notification is one session-termination message for one client.
type Notification struct {
	// URI is the client's registered backchannel logout endpoint.
	URI string
	// Token is the signed logout token posted to the client.
	Token string
}

// Notifier delivers session-termination notifications.  A single Notifier
// is safe for concurrent use.
type Notifier struct {
	client  *http.Client
	log     *slog.Logger
	workers int
	wait    time.Duration
}

// NewNotifier returns a Notifier with the given pool size and overall
// wait.  A nil client falls back to http.DefaultClient, a nil logger to
// slog.Default.
func NewNotifier(client *http.Client, logger *slog.Logger, workers int, wait time.Duration) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Notifier{client: client, log: logger, workers: workers, wait: wait}
}

// Notify posts every notification from a bounded worker pool and waits at
// most the configured overall time for them to finish.  It returns the
// number of notifications delivered; undelivered ones are logged and
// abandoned.
func (n *Notifier) Notify(ctx context.Context, notifications []Notification) int {
	if len(notifications) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, n.wait)
	defer cancel()

	jobs := make(chan Notification)
	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	workers := n.workers
	if workers > len(notifications) {
		workers = len(notifications)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := n.send(ctx, job); err != nil {
					n.log.Warn("backchannel notification failed", "uri", job.URI, "err", err)
					continue
				}
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}

enqueue:
	for i, job := range notifications {
		select {
		case jobs <- job:
		case <-ctx.Done():
			n.log.Warn("backchannel notification window closed", "pending", len(notifications)-i)
			break enqueue
		}
	}
	close(jobs)
	wg.Wait()

	return delivered
}

func (n *Notifier) send(ctx context.Context, notification Notification) error {
	if _, err := url.ParseRequestURI(notification.URI); err != nil {
		return errors.Wrap(err, "invalid logout URI")
	}

	form := url.Values{"logout_token": {notification.Token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.URI, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "building logout request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting logout token")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("logout endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
