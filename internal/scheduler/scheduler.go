// Package scheduler deletes single messages after a delay. Every scheduled
// deletion is persisted before its timer is armed, so it survives restarts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/suspectuso/welcome-bot/internal/messenger"
	"github.com/suspectuso/welcome-bot/internal/metrics"
	"github.com/suspectuso/welcome-bot/internal/pending"
	"github.com/suspectuso/welcome-bot/internal/timer"
)

const defaultDeleteTimeout = 30 * time.Second

// Deleter removes a message from the platform.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Store is the durable log of scheduled deletions.
type Store interface {
	Append(rec pending.Deletion) error
	RemoveByMessageID(chatID int64, messageID int) error
	LoadAll(chatID int64) ([]pending.Deletion, error)
	Chats() ([]int64, error)
}

// Task describes one armed deletion.
type Task struct {
	ChatID    int64
	MessageID int
	ThreadID  *int
	FireAt    time.Time
}

type taskKey struct {
	chatID    int64
	messageID int
}

type armedTask struct {
	task  Task
	gen   uint64
	timer timer.Timer
}

// Scheduler owns the set of armed deletion timers.
type Scheduler struct {
	deleter Deleter
	store   Store
	clock   timer.Clock
	log     *slog.Logger

	// OnDeleted, when set, is called after a successful platform deletion.
	OnDeleted func(chatID int64, messageID int)
	// DeleteTimeout bounds each platform deletion call.
	DeleteTimeout time.Duration

	// persistMu orders durable-record changes against re-arming, so a
	// deletion in flight never drops the record of a newer schedule.
	persistMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	armed   map[taskKey]*armedTask
	stopped bool
}

// New creates a scheduler. A nil clock means the wall clock.
func New(deleter Deleter, store Store, clock timer.Clock, log *slog.Logger) *Scheduler {
	if clock == nil {
		clock = timer.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		deleter:       deleter,
		store:         store,
		clock:         clock,
		log:           log,
		DeleteTimeout: defaultDeleteTimeout,
		armed:         make(map[taskKey]*armedTask),
	}
}

// Schedule persists the intent to delete a message after delay and arms its
// timer. The timer is armed even when persisting fails; the returned error
// then means the deletion will not survive a restart.
func (s *Scheduler) Schedule(chatID int64, messageID int, threadID *int, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	now := s.clock.Now()
	task := Task{
		ChatID:    chatID,
		MessageID: messageID,
		ThreadID:  threadID,
		FireAt:    now.Add(delay),
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	err := s.store.Append(pending.Deletion{
		ChatID:    chatID,
		MessageID: messageID,
		ThreadID:  threadID,
		DeleteAt:  task.FireAt.Unix(),
		CreatedAt: now.Unix(),
	})
	if err != nil {
		err = fmt.Errorf("persist deletion %d/%d: %w", chatID, messageID, err)
	}

	s.arm(task, delay)
	s.log.Debug("deletion scheduled",
		"chat_id", chatID,
		"message_id", messageID,
		"delay", delay,
	)
	return err
}

// Recover re-arms every persisted deletion. Records whose deadline already
// passed fire immediately. It returns the number of records replayed.
func (s *Scheduler) Recover() (int, error) {
	chats, err := s.store.Chats()
	if err != nil {
		return 0, fmt.Errorf("list pending chats: %w", err)
	}

	replayed := 0
	for _, chatID := range chats {
		records, err := s.store.LoadAll(chatID)
		if err != nil {
			s.log.Error("load pending deletions", "chat_id", chatID, "error", err)
			continue
		}

		now := s.clock.Now()
		for _, rec := range records {
			fireAt := rec.DeleteTime()
			delay := fireAt.Sub(now)
			if delay < 0 {
				delay = 0
			}
			s.arm(Task{
				ChatID:    rec.ChatID,
				MessageID: rec.MessageID,
				ThreadID:  rec.ThreadID,
				FireAt:    fireAt,
			}, delay)
			replayed++
		}
	}

	if replayed > 0 {
		s.log.Info("pending deletions recovered", "count", replayed, "chats", len(chats))
	}
	return replayed, nil
}

// Cancel disarms a scheduled deletion and drops its durable record.
func (s *Scheduler) Cancel(chatID int64, messageID int) error {
	key := taskKey{chatID: chatID, messageID: messageID}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if a, ok := s.armed[key]; ok {
		a.timer.Stop()
		delete(s.armed, key)
		metrics.PendingDeletions.Set(float64(len(s.armed)))
	}
	s.mu.Unlock()

	return s.store.RemoveByMessageID(chatID, messageID)
}

// Pending returns the armed tasks.
func (s *Scheduler) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]Task, 0, len(s.armed))
	for _, a := range s.armed {
		tasks = append(tasks, a.task)
	}
	return tasks
}

// Stop disarms every timer. Durable records are kept for the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, a := range s.armed {
		a.timer.Stop()
		delete(s.armed, key)
	}
	metrics.PendingDeletions.Set(0)
}

func (s *Scheduler) arm(task Task, delay time.Duration) {
	key := taskKey{chatID: task.ChatID, messageID: task.MessageID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.armed[key]; ok {
		prev.timer.Stop()
	}

	s.gen++
	a := &armedTask{task: task, gen: s.gen}
	gen := s.gen
	a.timer = s.clock.AfterFunc(delay, func() { s.fire(key, gen) })
	s.armed[key] = a
	metrics.PendingDeletions.Set(float64(len(s.armed)))
}

func (s *Scheduler) fire(key taskKey, gen uint64) {
	s.mu.Lock()
	a, ok := s.armed[key]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.armed, key)
	metrics.PendingDeletions.Set(float64(len(s.armed)))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.DeleteTimeout)
	defer cancel()

	// every outcome is terminal: "already gone" and "can never delete" look
	// the same from here, so the record is dropped either way
	err := s.deleter.DeleteMessage(ctx, key.chatID, key.messageID)
	kind := messenger.Classify(err)
	metrics.Deletions.WithLabelValues(string(kind)).Inc()

	if err != nil {
		s.log.Warn("scheduled deletion failed",
			"chat_id", key.chatID,
			"message_id", key.messageID,
			"kind", kind,
			"error", err,
		)
	} else {
		s.log.Debug("scheduled deletion done", "chat_id", key.chatID, "message_id", key.messageID)
		if s.OnDeleted != nil {
			s.OnDeleted(key.chatID, key.messageID)
		}
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	_, rearmed := s.armed[key]
	s.mu.Unlock()
	if rearmed {
		s.log.Debug("deletion re-armed while in flight, record kept",
			"chat_id", key.chatID,
			"message_id", key.messageID,
		)
		return
	}

	if err := s.store.RemoveByMessageID(key.chatID, key.messageID); err != nil {
		s.log.Error("remove pending deletion",
			"chat_id", key.chatID,
			"message_id", key.messageID,
			"error", err,
		)
	}
}
