package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmins struct {
	admin bool
	calls int
}

func (s *stubAdmins) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	s.calls++
	return s.admin
}

type recordingSaver struct {
	mu           sync.Mutex
	welcome      []string
	registration []string
	err          error
}

func (r *recordingSaver) SaveWelcomeText(chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.welcome = append(r.welcome, text)
	return nil
}

func (r *recordingSaver) SaveRegistrationText(chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.registration = append(r.registration, text)
	return nil
}

func TestCaptureEmptyKeepsWaiting(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{}
	admins := &stubAdmins{admin: true}

	w.Begin(-100, 7, AwaitingWelcomeText)

	kind, res := w.Capture(context.Background(), -100, 7, "   \n ", admins, saver)
	assert.Equal(t, AwaitingWelcomeText, kind)
	assert.Equal(t, CaptureEmpty, res)

	state, ok := w.Get(-100, 7)
	require.True(t, ok)
	assert.Equal(t, AwaitingWelcomeText, state)
	assert.Empty(t, saver.welcome)

	_, res = w.Capture(context.Background(), -100, 7, "  ¡Hola!\nBienvenid@  ", admins, saver)
	assert.Equal(t, CaptureSaved, res)
	assert.Equal(t, []string{"¡Hola!\nBienvenid@"}, saver.welcome)

	_, ok = w.Get(-100, 7)
	assert.False(t, ok, "back to idle")

	_, res = w.Capture(context.Background(), -100, 7, "otra vez", admins, saver)
	assert.Equal(t, CaptureIdle, res)
	assert.Len(t, saver.welcome, 1)
}

func TestCaptureRegistration(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{}

	w.Begin(-100, 7, AwaitingRegistrationText)
	_, res := w.Capture(context.Background(), -100, 7, "<b>join</b>", &stubAdmins{admin: true}, saver)

	assert.Equal(t, CaptureSaved, res)
	assert.Equal(t, []string{"<b>join</b>"}, saver.registration)
	assert.Empty(t, saver.welcome)
}

func TestCaptureRechecksAdmin(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{}
	admins := &stubAdmins{admin: false}

	w.Begin(-100, 7, AwaitingWelcomeText)
	_, res := w.Capture(context.Background(), -100, 7, "texto", admins, saver)

	assert.Equal(t, CaptureDenied, res)
	assert.Equal(t, 1, admins.calls)
	assert.Empty(t, saver.welcome)
	_, ok := w.Get(-100, 7)
	assert.False(t, ok)
}

func TestCaptureIsPerUserAndChat(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{}
	admins := &stubAdmins{admin: true}

	w.Begin(-100, 7, AwaitingWelcomeText)

	_, res := w.Capture(context.Background(), -100, 8, "otro usuario", admins, saver)
	assert.Equal(t, CaptureIdle, res)
	_, res = w.Capture(context.Background(), -200, 7, "otro chat", admins, saver)
	assert.Equal(t, CaptureIdle, res)

	assert.Zero(t, admins.calls)
	assert.Empty(t, saver.welcome)
}

func TestCaptureSaveFailureKeepsWaiting(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{err: errors.New("disk full")}

	w.Begin(-100, 7, AwaitingWelcomeText)
	_, res := w.Capture(context.Background(), -100, 7, "texto", &stubAdmins{admin: true}, saver)

	assert.Equal(t, CaptureFailed, res)
	kind, ok := w.Get(-100, 7)
	require.True(t, ok)
	assert.Equal(t, AwaitingWelcomeText, kind)
}

func TestCaptureConcurrentSavesOnce(t *testing.T) {
	w := NewWaitStates()
	saver := &recordingSaver{}

	w.Begin(-100, 7, AwaitingWelcomeText)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Capture(context.Background(), -100, 7, "texto", concurrentAdmins{}, saver)
		}()
	}
	wg.Wait()

	assert.Len(t, saver.welcome, 1)
}

type concurrentAdmins struct{}

func (concurrentAdmins) IsAdmin(context.Context, int64, int64) bool { return true }

func TestBeginOverwritesAndCancel(t *testing.T) {
	w := NewWaitStates()

	w.Begin(-100, 7, AwaitingWelcomeText)
	w.Begin(-100, 7, AwaitingRegistrationText)
	kind, ok := w.Get(-100, 7)
	require.True(t, ok)
	assert.Equal(t, AwaitingRegistrationText, kind)

	assert.True(t, w.Cancel(-100, 7))
	assert.False(t, w.Cancel(-100, 7))
}
