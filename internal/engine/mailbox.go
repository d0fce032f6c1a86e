package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halvely/push-relay-agent/pkg/retry"
)

// Task is one unit of serialized work.
type Task func(ctx context.Context) error

type pendingTask struct {
	fn         Task
	enqueuedAt time.Time
}

// Mailbox holds at most one pending task: a newer submission replaces a
// not-yet-started one, and a single worker drains the slot so no two tasks
// ever run concurrently. An in-flight task is never cancelled by a
// superseding submission; the newer task simply runs strictly after it.
type Mailbox struct {
	name     string
	retryCfg retry.Config
	lifespan time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending *pendingTask
	notify  chan struct{}
}

func NewMailbox(name string, retryCfg retry.Config, lifespan time.Duration, logger *slog.Logger) *Mailbox {
	if lifespan <= 0 {
		lifespan = 6 * time.Hour
	}
	return &Mailbox{
		name:     name,
		retryCfg: retryCfg,
		lifespan: lifespan,
		logger:   logger,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue submits fn, replacing any task that has not started yet.
func (m *Mailbox) Enqueue(fn Task) {
	m.mu.Lock()
	m.pending = &pendingTask{fn: fn, enqueuedAt: time.Now()}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Run drains the mailbox until the context is cancelled. Each task is
// retried under the mailbox's retry policy within its lifespan deadline;
// retry.Permanent failures stop immediately.
func (m *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
		}

		for {
			m.mu.Lock()
			task := m.pending
			m.pending = nil
			m.mu.Unlock()
			if task == nil {
				break
			}
			m.execute(ctx, task)
		}
	}
}

func (m *Mailbox) execute(ctx context.Context, task *pendingTask) {
	runCtx, cancel := context.WithDeadline(ctx, task.enqueuedAt.Add(m.lifespan))
	defer cancel()

	err := retry.Do(runCtx, m.retryCfg, func() error {
		return task.fn(runCtx)
	})
	if err != nil && ctx.Err() == nil {
		m.logger.Warn("task failed after retry attempt exhaustion",
			slog.String("mailbox", m.name), slog.Any("error", err))
	}
}
