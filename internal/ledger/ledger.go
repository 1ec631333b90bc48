// Package ledger keeps a bounded, per-chat record of recently observed
// messages. It only forgets bookkeeping; it never deletes anything from the
// platform.
package ledger

import "sync"

// DefaultCapacity is the per-chat bound used when none is configured.
const DefaultCapacity = 1000

// Entry describes one observed message.
type Entry struct {
	MessageID int
	AuthorID  *int64 // nil for anonymous or channel posts
	IsCommand bool
	IsService bool
}

// Ledger is safe for concurrent use. Chats are independent: each has its own
// lock, so writers for different chats never contend.
type Ledger struct {
	capacity int

	mu    sync.RWMutex
	chats map[int64]*chatLog
}

type chatLog struct {
	mu      sync.Mutex
	entries []Entry // arrival order, oldest first
	ids     map[int]struct{}
}

// New creates a ledger holding at most capacity entries per chat.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		chats:    make(map[int64]*chatLog),
	}
}

// Capacity returns the per-chat bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// Record appends an entry to the chat's sequence. The oldest entry is dropped
// once capacity is exceeded. A message id already present is ignored.
func (l *Ledger) Record(chatID int64, e Entry) {
	c := l.chat(chatID, true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.ids[e.MessageID]; dup {
		return
	}
	if len(c.entries) >= l.capacity {
		drop := len(c.entries) - l.capacity + 1
		for _, old := range c.entries[:drop] {
			delete(c.ids, old.MessageID)
		}
		c.entries = append(c.entries[:0], c.entries[drop:]...)
	}
	c.entries = append(c.entries, e)
	c.ids[e.MessageID] = struct{}{}
}

// Snapshot returns a copy of the chat's entries in arrival order.
func (l *Ledger) Snapshot(chatID int64) []Entry {
	c := l.chat(chatID, false)
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Forget drops the given message ids from the chat's sequence.
func (l *Ledger) Forget(chatID int64, messageIDs ...int) {
	if len(messageIDs) == 0 {
		return
	}
	c := l.chat(chatID, false)
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[int]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		if _, ok := c.ids[id]; ok {
			drop[id] = struct{}{}
			delete(c.ids, id)
		}
	}
	if len(drop) == 0 {
		return
	}

	kept := c.entries[:0]
	for _, e := range c.entries {
		if _, ok := drop[e.MessageID]; !ok {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}

// Len returns the number of entries held for a chat.
func (l *Ledger) Len(chatID int64) int {
	c := l.chat(chatID, false)
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (l *Ledger) chat(chatID int64, create bool) *chatLog {
	l.mu.RLock()
	c := l.chats[chatID]
	l.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c = l.chats[chatID]; c == nil {
		c = &chatLog{ids: make(map[int]struct{})}
		l.chats[chatID] = c
	}
	return c
}
