// Package cleanup bulk-deletes a chat's recent messages, newest first,
// sparing the pinned message and privileged authors.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suspectuso/welcome-bot/internal/ledger"
	"github.com/suspectuso/welcome-bot/internal/messenger"
	"github.com/suspectuso/welcome-bot/internal/metrics"
	"github.com/suspectuso/welcome-bot/internal/timer"
)

// Platform is the subset of the messenger used while cleaning.
type Platform interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	GetPinnedMessage(ctx context.Context, chatID int64) (int, bool, error)
}

// Privileges decides whether an author's plain messages must be kept.
type Privileges interface {
	IsPrivileged(ctx context.Context, chatID, userID int64) (privileged, ok bool)
}

// Ledger is the message history the engine traverses.
type Ledger interface {
	Snapshot(chatID int64) []ledger.Entry
	Forget(chatID int64, messageIDs ...int)
}

// Result is the outcome of one Clean call.
type Result struct {
	Deleted           int
	SkippedPinned     int
	SkippedPrivileged int
	Failed            int
}

// Trigger labels what started a cleanup run.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// Engine runs cleanups and owns the per-chat auto-clean timers.
type Engine struct {
	platform   Platform
	privileges Privileges
	ledger     Ledger
	botID      int64
	clock      timer.Clock
	log        *slog.Logger

	// AutoLimit is the batch size of recurring cleanups.
	AutoLimit int
	// RunTimeout bounds a recurring cleanup run.
	RunTimeout time.Duration

	mu   sync.Mutex
	jobs map[int64]*recurringJob
}

type recurringJob struct {
	period time.Duration
	timer  timer.Timer
}

// New creates an engine. botID identifies messages the bot sent itself.
func New(platform Platform, privileges Privileges, l Ledger, botID int64, clock timer.Clock, log *slog.Logger) *Engine {
	if clock == nil {
		clock = timer.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		platform:   platform,
		privileges: privileges,
		ledger:     l,
		botID:      botID,
		clock:      clock,
		log:        log,
		AutoLimit:  200,
		RunTimeout: 10 * time.Minute,
		jobs:       make(map[int64]*recurringJob),
	}
}

// Clean deletes up to limit of the chat's most recent ledger entries.
// Commands, service events and the bot's own messages are always deletable;
// other messages from privileged authors are kept. A failed deletion is
// counted and traversal continues.
func (e *Engine) Clean(ctx context.Context, chatID int64, limit int, trigger Trigger) Result {
	var res Result
	if limit <= 0 {
		return res
	}

	pinnedID, hasPinned, err := e.platform.GetPinnedMessage(ctx, chatID)
	if err != nil {
		e.log.Debug("pinned message lookup failed", "chat_id", chatID, "error", err)
		hasPinned = false
	}

	entries := e.ledger.Snapshot(chatID)
	privileged := make(map[int64]bool)
	var deleted []int

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		if hasPinned && entry.MessageID == pinnedID {
			res.SkippedPinned++
			continue
		}
		if res.Deleted >= limit {
			break
		}

		if !e.forced(entry) && entry.AuthorID != nil {
			author := *entry.AuthorID
			priv, seen := privileged[author]
			if !seen {
				// a failed lookup leaves the author deletable
				priv, _ = e.privileges.IsPrivileged(ctx, chatID, author)
				privileged[author] = priv
			}
			if priv {
				res.SkippedPrivileged++
				continue
			}
		}

		if err := e.platform.DeleteMessage(ctx, chatID, entry.MessageID); err != nil {
			res.Failed++
			e.log.Debug("cleanup deletion failed",
				"chat_id", chatID,
				"message_id", entry.MessageID,
				"kind", messenger.Classify(err),
				"error", err,
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.Deleted++
		deleted = append(deleted, entry.MessageID)
	}

	e.ledger.Forget(chatID, deleted...)

	metrics.CleanupRuns.WithLabelValues(string(trigger)).Inc()
	metrics.CleanupMessages.WithLabelValues("deleted").Add(float64(res.Deleted))
	metrics.CleanupMessages.WithLabelValues("skipped_pinned").Add(float64(res.SkippedPinned))
	metrics.CleanupMessages.WithLabelValues("skipped_privileged").Add(float64(res.SkippedPrivileged))
	metrics.CleanupMessages.WithLabelValues("failed").Add(float64(res.Failed))

	e.log.Info("cleanup finished",
		"chat_id", chatID,
		"trigger", trigger,
		"limit", limit,
		"deleted", res.Deleted,
		"skipped_pinned", res.SkippedPinned,
		"skipped_privileged", res.SkippedPrivileged,
		"failed", res.Failed,
	)
	return res
}

func (e *Engine) forced(entry ledger.Entry) bool {
	if entry.IsCommand || entry.IsService {
		return true
	}
	return entry.AuthorID != nil && *entry.AuthorID == e.botID
}

// ScheduleRecurring replaces the chat's auto-clean timer. The first run
// happens one interval from now. hours <= 0 disarms.
func (e *Engine) ScheduleRecurring(chatID int64, hours int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if job, ok := e.jobs[chatID]; ok {
		job.timer.Stop()
		delete(e.jobs, chatID)
	}
	if hours <= 0 {
		e.log.Info("auto-clean disarmed", "chat_id", chatID)
		return
	}

	job := &recurringJob{period: time.Duration(hours) * time.Hour}
	e.jobs[chatID] = job
	e.armLocked(chatID, job)
	e.log.Info("auto-clean armed", "chat_id", chatID, "interval_hours", hours)
}

// IsArmed reports whether the chat has an auto-clean timer.
func (e *Engine) IsArmed(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.jobs[chatID]
	return ok
}

// Stop disarms every auto-clean timer.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for chatID, job := range e.jobs {
		job.timer.Stop()
		delete(e.jobs, chatID)
	}
}

func (e *Engine) armLocked(chatID int64, job *recurringJob) {
	job.timer = e.clock.AfterFunc(job.period, func() { e.runRecurring(chatID, job) })
}

func (e *Engine) runRecurring(chatID int64, job *recurringJob) {
	e.mu.Lock()
	if e.jobs[chatID] != job {
		// replaced or disarmed after this timer fired
		e.mu.Unlock()
		return
	}
	e.armLocked(chatID, job)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.RunTimeout)
	defer cancel()
	e.Clean(ctx, chatID, e.AutoLimit, TriggerAuto)
}
