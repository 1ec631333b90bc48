package telegram

import (
	"context"
	"strings"
	"sync"

	"github.com/suspectuso/welcome-bot/internal/metrics"
)

// WaitKind is what the next message of a user is captured as.
type WaitKind string

// Wait kinds
const (
	AwaitingWelcomeText      WaitKind = "welcome_text"
	AwaitingRegistrationText WaitKind = "registration_text"
)

// CaptureResult is the outcome of offering a message to the state machine.
type CaptureResult string

const (
	CaptureIdle   CaptureResult = "idle"   // no wait state, process normally
	CaptureEmpty  CaptureResult = "empty"  // nothing to save, still waiting
	CaptureDenied CaptureResult = "denied" // no longer admin, back to idle
	CaptureSaved  CaptureResult = "saved"
	CaptureFailed CaptureResult = "failed" // save failed, still waiting
)

// AdminChecker re-verifies privileges at capture time.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) bool
}

// TextSaver persists captured templates.
type TextSaver interface {
	SaveWelcomeText(chatID int64, text string) error
	SaveRegistrationText(chatID int64, text string) error
}

type waitKey struct {
	chatID int64
	userID int64
}

// WaitStates tracks, per (chat, user), whether the next message is
// configuration text. Absence of a key is the idle state. Nothing is
// persisted.
type WaitStates struct {
	mu     sync.Mutex
	states map[waitKey]WaitKind
}

// NewWaitStates creates an empty state table
func NewWaitStates() *WaitStates {
	return &WaitStates{
		states: make(map[waitKey]WaitKind),
	}
}

// Begin enters kind, replacing any previous wait of the same user in the chat.
func (w *WaitStates) Begin(chatID, userID int64, kind WaitKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[waitKey{chatID, userID}] = kind
}

// Get returns the user's wait kind, if any.
func (w *WaitStates) Get(chatID, userID int64) (WaitKind, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kind, ok := w.states[waitKey{chatID, userID}]
	return kind, ok
}

// Cancel returns the user to idle. It reports whether a wait was active.
func (w *WaitStates) Cancel(chatID, userID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := waitKey{chatID, userID}
	_, ok := w.states[key]
	delete(w.states, key)
	return ok
}

// Capture offers an inbound message to the state machine. Admin status is
// checked again without holding the lock. Non-empty text is saved trimmed,
// exactly once even when messages race.
func (w *WaitStates) Capture(ctx context.Context, chatID, userID int64, text string, admins AdminChecker, saver TextSaver) (WaitKind, CaptureResult) {
	kind, ok := w.Get(chatID, userID)
	if !ok {
		return "", CaptureIdle
	}

	result := w.capture(ctx, chatID, userID, kind, text, admins, saver)
	metrics.WaitCaptures.WithLabelValues(string(result)).Inc()
	return kind, result
}

func (w *WaitStates) capture(ctx context.Context, chatID, userID int64, kind WaitKind, text string, admins AdminChecker, saver TextSaver) CaptureResult {
	if !admins.IsAdmin(ctx, chatID, userID) {
		w.release(chatID, userID, kind)
		return CaptureDenied
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return CaptureEmpty
	}

	// claim the state so a concurrent message cannot save a second time
	if !w.release(chatID, userID, kind) {
		return CaptureIdle
	}

	var err error
	switch kind {
	case AwaitingWelcomeText:
		err = saver.SaveWelcomeText(chatID, text)
	case AwaitingRegistrationText:
		err = saver.SaveRegistrationText(chatID, text)
	}
	if err != nil {
		w.restore(chatID, userID, kind)
		return CaptureFailed
	}
	return CaptureSaved
}

// release drops the key only if it still holds kind.
func (w *WaitStates) release(chatID, userID int64, kind WaitKind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := waitKey{chatID, userID}
	if w.states[key] != kind {
		return false
	}
	delete(w.states, key)
	return true
}

func (w *WaitStates) restore(chatID, userID int64, kind WaitKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := waitKey{chatID, userID}
	if _, ok := w.states[key]; !ok {
		w.states[key] = kind
	}
}
