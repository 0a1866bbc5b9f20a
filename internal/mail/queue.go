// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/pkg/errutil"
)

// Queue defaults.
const (
	DefaultQueueWorkers = 2
	DefaultQueueSize    = 64
	queueSendTimeout    = time.Minute
)

type job struct {
	ctx context.Context
	msg auth.Message
}

// Queue hands messages to a notifier on background workers. Send never
// waits on the relay: it fails fast when the buffer is full. Delivery errors
// after the hand-off are logged.
type Queue struct {
	next   auth.Notifier
	logger *slog.Logger
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ auth.Notifier = (*Queue)(nil)

// NewQueue starts workers delivering through next. Non-positive sizes take
// the defaults.
func NewQueue(next auth.Notifier, workers, size int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultQueueWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		next:   next,
		logger: logger,
		jobs:   make(chan job, size),
	}
	for range workers {
		q.wg.Go(q.work)
	}
	return q
}

// Send enqueues msg. The request context is detached so a finished request
// does not cancel the delivery; its values still reach the notifier.
func (q *Queue) Send(ctx context.Context, msg auth.Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return oops.Code("MAIL_QUEUE_CLOSED").With("subject", msg.Subject).Errorf("mail queue is closed")
	}
	select {
	case q.jobs <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		return nil
	default:
		return oops.Code("MAIL_QUEUE_FULL").
			With("subject", msg.Subject).
			With("capacity", cap(q.jobs)).
			Errorf("mail queue is full")
	}
}

func (q *Queue) work() {
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(j.ctx, queueSendTimeout)
		if err := q.next.Send(ctx, j.msg); err != nil {
			errutil.LogErrorContext(ctx, q.logger, "queued mail not delivered", err)
		}
		cancel()
	}
}

// Close stops accepting messages and waits for the queued ones to be sent,
// or for ctx to end. Calling Close again is a no-op.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_QUEUE_DRAIN_FAILED").With("pending", len(q.jobs)).Wrap(ctx.Err())
	}
}
