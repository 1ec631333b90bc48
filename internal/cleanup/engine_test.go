package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/welcome-bot/internal/ledger"
	"github.com/suspectuso/welcome-bot/internal/messenger"
	"github.com/suspectuso/welcome-bot/internal/timer"
)

const (
	chatID = int64(-100)
	botID  = int64(999)
	adminA = int64(1)
	userB  = int64(2)
)

type fakePlatform struct {
	pinned    int
	pinnedErr error
	failOn    map[int]bool
	deleted   []int
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if f.failOn[messageID] {
		return messenger.ErrPermissionDenied
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePlatform) GetPinnedMessage(ctx context.Context, chatID int64) (int, bool, error) {
	if f.pinnedErr != nil {
		return 0, false, f.pinnedErr
	}
	return f.pinned, f.pinned != 0, nil
}

type fakePrivileges struct {
	admins map[int64]bool
	failed bool
	calls  map[int64]int
}

func (f *fakePrivileges) IsPrivileged(ctx context.Context, chatID, userID int64) (bool, bool) {
	if f.calls == nil {
		f.calls = make(map[int64]int)
	}
	f.calls[userID]++
	if f.failed {
		return false, false
	}
	return f.admins[userID], true
}

func author(id int64) *int64 { return &id }

func newEngine(p *fakePlatform, priv *fakePrivileges, l *ledger.Ledger) *Engine {
	return New(p, priv, l, botID, timer.NewManual(time.Unix(0, 0)), nil)
}

func TestCleanSkipsPinnedAndHonoursLimit(t *testing.T) {
	l := ledger.New(100)
	for id := 1; id <= 5; id++ {
		l.Record(chatID, ledger.Entry{MessageID: id, AuthorID: author(userB)})
	}
	// newest-first: 5, 4, 3(pinned), 2, 1
	p := &fakePlatform{pinned: 3}
	e := newEngine(p, &fakePrivileges{}, l)

	res := e.Clean(context.Background(), chatID, 2, TriggerManual)

	assert.Equal(t, 1, res.SkippedPinned)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, []int{5, 4}, p.deleted)
	assert.NotContains(t, p.deleted, 3)
}

func TestCleanCommandsBypassPrivilegeCheck(t *testing.T) {
	l := ledger.New(100)
	l.Record(chatID, ledger.Entry{MessageID: 1, AuthorID: author(adminA), IsCommand: true})
	l.Record(chatID, ledger.Entry{MessageID: 2, AuthorID: author(adminA)})
	l.Record(chatID, ledger.Entry{MessageID: 3, AuthorID: author(userB)})

	p := &fakePlatform{}
	priv := &fakePrivileges{admins: map[int64]bool{adminA: true}}
	e := newEngine(p, priv, l)

	res := e.Clean(context.Background(), chatID, 10, TriggerManual)

	assert.ElementsMatch(t, []int{1, 3}, p.deleted)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, res.SkippedPrivileged)
	assert.Equal(t, 1, priv.calls[adminA], "privilege resolved once per author per run")
}

func TestCleanForcedEntries(t *testing.T) {
	l := ledger.New(100)
	l.Record(chatID, ledger.Entry{MessageID: 1, AuthorID: author(botID)})
	l.Record(chatID, ledger.Entry{MessageID: 2, AuthorID: author(adminA), IsService: true})
	l.Record(chatID, ledger.Entry{MessageID: 3})

	p := &fakePlatform{}
	priv := &fakePrivileges{admins: map[int64]bool{adminA: true}}
	e := newEngine(p, priv, l)

	res := e.Clean(context.Background(), chatID, 10, TriggerManual)

	assert.Equal(t, 3, res.Deleted)
	assert.Empty(t, priv.calls)
}

func TestCleanContinuesAfterFailure(t *testing.T) {
	l := ledger.New(100)
	for id := 1; id <= 4; id++ {
		l.Record(chatID, ledger.Entry{MessageID: id, AuthorID: author(userB)})
	}

	p := &fakePlatform{failOn: map[int]bool{4: true, 2: true}}
	e := newEngine(p, &fakePrivileges{}, l)

	res := e.Clean(context.Background(), chatID, 10, TriggerManual)

	assert.Equal(t, Result{Deleted: 2, Failed: 2}, res)
	assert.Equal(t, []int{3, 1}, p.deleted)

	// deleted entries are forgotten, failed ones stay
	remaining := l.Snapshot(chatID)
	require.Len(t, remaining, 2)
	assert.Equal(t, 2, remaining[0].MessageID)
	assert.Equal(t, 4, remaining[1].MessageID)
}

func TestCleanPrivilegeLookupFailureDeletes(t *testing.T) {
	l := ledger.New(100)
	l.Record(chatID, ledger.Entry{MessageID: 1, AuthorID: author(adminA)})

	p := &fakePlatform{pinnedErr: errors.New("boom")}
	e := newEngine(p, &fakePrivileges{failed: true}, l)

	res := e.Clean(context.Background(), chatID, 10, TriggerManual)
	assert.Equal(t, 1, res.Deleted)
}

func TestCleanZeroLimit(t *testing.T) {
	l := ledger.New(100)
	l.Record(chatID, ledger.Entry{MessageID: 1})

	p := &fakePlatform{}
	res := newEngine(p, &fakePrivileges{}, l).Clean(context.Background(), chatID, 0, TriggerManual)

	assert.Equal(t, Result{}, res)
	assert.Empty(t, p.deleted)
}

func TestScheduleRecurring(t *testing.T) {
	l := ledger.New(100)
	p := &fakePlatform{}
	clock := timer.NewManual(time.Unix(0, 0))
	e := New(p, &fakePrivileges{}, l, botID, clock, nil)
	e.AutoLimit = 1

	e.ScheduleRecurring(chatID, 2)
	assert.True(t, e.IsArmed(chatID))

	l.Record(chatID, ledger.Entry{MessageID: 1})
	l.Record(chatID, ledger.Entry{MessageID: 2})

	clock.Advance(time.Hour)
	assert.Empty(t, p.deleted, "first run is one interval away")

	clock.Advance(time.Hour)
	assert.Equal(t, []int{2}, p.deleted)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, []int{2, 1}, p.deleted)
}

func TestScheduleRecurringRearmNeverDoubles(t *testing.T) {
	clock := timer.NewManual(time.Unix(0, 0))
	e := New(&fakePlatform{}, &fakePrivileges{}, ledger.New(10), botID, clock, nil)

	e.ScheduleRecurring(chatID, 1)
	e.ScheduleRecurring(chatID, 1)
	e.ScheduleRecurring(chatID, 3)
	assert.Equal(t, 1, clock.Pending())

	e.ScheduleRecurring(chatID, 0)
	assert.False(t, e.IsArmed(chatID))
	assert.Equal(t, 0, clock.Pending())
}

func TestStopDisarmsAll(t *testing.T) {
	clock := timer.NewManual(time.Unix(0, 0))
	e := New(&fakePlatform{}, &fakePrivileges{}, ledger.New(10), botID, clock, nil)

	e.ScheduleRecurring(-1, 1)
	e.ScheduleRecurring(-2, 5)
	e.Stop()

	assert.False(t, e.IsArmed(-1))
	assert.Equal(t, 0, clock.Pending())
}
