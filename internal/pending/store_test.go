package pending

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	thread := 12

	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 1, DeleteAt: 100, CreatedAt: 40}))
	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 2, ThreadID: &thread, DeleteAt: 200, CreatedAt: 50}))

	recs, err := s.LoadAll(-100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].MessageID)
	assert.Nil(t, recs[0].ThreadID)
	require.NotNil(t, recs[1].ThreadID)
	assert.Equal(t, 12, *recs[1].ThreadID)
	assert.Equal(t, int64(200), recs[1].DeleteAt)
}

func TestLoadMissingChat(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.LoadAll(-404)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRemoveDropsEveryMatchingRecord(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 7, DeleteAt: 1}))
	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 8, DeleteAt: 1}))
	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 7, DeleteAt: 2}))

	require.NoError(t, s.RemoveByMessageID(-100, 7))

	recs, err := s.LoadAll(-100)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 8, recs[0].MessageID)

	// second removal is a no-op
	require.NoError(t, s.RemoveByMessageID(-100, 7))
	recs, err = s.LoadAll(-100)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRemoveLastRecordDeletesFile(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: 7, DeleteAt: 1}))
	require.NoError(t, s.RemoveByMessageID(-100, 7))

	_, err := os.Stat(s.path(-100))
	assert.True(t, os.IsNotExist(err))

	chats, err := s.Chats()
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestMalformedLinesAreSkippedAndPreserved(t *testing.T) {
	s := newTestStore(t)

	content := `{"chat_id":-100,"message_id":1,"thread_id":null,"delete_at":10,"created_at":5}
not json
{"chat_id":-100,"message_id":2,"thread_id":null,"delete_at":20,"created_at":5}
`
	require.NoError(t, os.WriteFile(s.path(-100), []byte(content), 0o644))

	recs, err := s.LoadAll(-100)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.NoError(t, s.RemoveByMessageID(-100, 1))

	data, err := os.ReadFile(s.path(-100))
	require.NoError(t, err)
	assert.Contains(t, string(data), "not json")
	assert.NotContains(t, string(data), `"message_id":1,`)
}

func TestChats(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(Deletion{ChatID: -200, MessageID: 1}))
	require.NoError(t, s.Append(Deletion{ChatID: 5, MessageID: 1}))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "pending_deletes_abc.jsonl"), nil, 0o644))

	chats, err := s.Chats()
	require.NoError(t, err)
	assert.Equal(t, []int64{-200, 5}, chats)
}

func TestConcurrentRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 20; i++ {
		require.NoError(t, s.Append(Deletion{ChatID: -100, MessageID: i}))
	}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				assert.NoError(t, s.RemoveByMessageID(-100, id))
			}(i)
		}
	}
	wg.Wait()

	recs, err := s.LoadAll(-100)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
