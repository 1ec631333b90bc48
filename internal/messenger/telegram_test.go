package messenger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers Bot API methods with canned JSON bodies.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	forms     map[string]map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	if err := r.ParseMultipartForm(1 << 20); err == nil {
		form := make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f.mu.Lock()
		f.forms[method] = form
		f.mu.Unlock()
	}

	body, ok := f.responses[method]
	if !ok {
		body = `{"ok":false,"error_code":404,"description":"Not Found: method not stubbed"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeAPI) form(method string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[method]
}

func newTestTelegram(t *testing.T, responses map[string]string) (*Telegram, *fakeAPI) {
	t.Helper()

	api := &fakeAPI{responses: responses, forms: make(map[string]map[string]string)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)
	return NewTelegram(b, 1000), api
}

func TestTelegramGetChatMember(t *testing.T) {
	cases := []struct {
		name string
		body string
		want MemberStatus
	}{
		{
			name: "creator",
			body: `{"ok":true,"result":{"status":"creator","user":{"id":1,"is_bot":false,"first_name":"Ana"},"is_anonymous":false}}`,
			want: StatusOwner,
		},
		{
			name: "administrator",
			body: `{"ok":true,"result":{"status":"administrator","user":{"id":1,"is_bot":false,"first_name":"Ana"},"can_delete_messages":true}}`,
			want: StatusAdministrator,
		},
		{
			name: "member",
			body: `{"ok":true,"result":{"status":"member","user":{"id":1,"is_bot":false,"first_name":"Ana"}}}`,
			want: StatusMember,
		},
		{
			name: "kicked",
			body: `{"ok":true,"result":{"status":"kicked","user":{"id":1,"is_bot":false,"first_name":"Ana"},"until_date":0}}`,
			want: StatusBanned,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tg, api := newTestTelegram(t, map[string]string{"getChatMember": tc.body})

			status, err := tg.GetChatMember(context.Background(), -100, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, tc.want.Privileged(), status.Privileged())
			assert.Equal(t, "1", api.form("getChatMember")["user_id"])
		})
	}
}

func TestTelegramGetChatAdministrators(t *testing.T) {
	tg, _ := newTestTelegram(t, map[string]string{
		"getChatAdministrators": `{"ok":true,"result":[
			{"status":"creator","user":{"id":10,"is_bot":false,"first_name":"Owner"},"is_anonymous":false},
			{"status":"administrator","user":{"id":20,"is_bot":false,"first_name":"Mod"}},
			{"status":"administrator","user":{"id":999,"is_bot":true,"first_name":"Bot"}}
		]}`,
	})

	admins, err := tg.GetChatAdministrators(context.Background(), -100)
	require.NoError(t, err)
	assert.Equal(t, []Admin{
		{UserID: 10, Status: StatusOwner},
		{UserID: 20, Status: StatusAdministrator},
		{UserID: 999, Status: StatusAdministrator},
	}, admins)
}

func TestTelegramGetPinnedMessage(t *testing.T) {
	t.Run("pinned", func(t *testing.T) {
		tg, _ := newTestTelegram(t, map[string]string{
			"getChat": `{"ok":true,"result":{"id":-100,"type":"supergroup","title":"G",
				"pinned_message":{"message_id":42,"date":1700000000,"chat":{"id":-100,"type":"supergroup"},"text":"reglas"}}}`,
		})

		id, ok, err := tg.GetPinnedMessage(context.Background(), -100)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 42, id)
	})

	t.Run("none", func(t *testing.T) {
		tg, _ := newTestTelegram(t, map[string]string{
			"getChat": `{"ok":true,"result":{"id":-100,"type":"supergroup","title":"G"}}`,
		})

		_, ok, err := tg.GetPinnedMessage(context.Background(), -100)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestTelegramDeleteMessageClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Kind
	}{
		{"ok", `{"ok":true,"result":true}`, KindOK},
		{"gone", `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`, KindNotFound},
		{"no rights", `{"ok":false,"error_code":400,"description":"Bad Request: message can't be deleted"}`, KindPermissionDenied},
		{"kicked", `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the supergroup chat"}`, KindPermissionDenied},
		{"flood", `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`, KindTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tg, api := newTestTelegram(t, map[string]string{"deleteMessage": tc.body})

			err := tg.DeleteMessage(context.Background(), -100, 7)
			assert.Equal(t, tc.want, Classify(err))
			assert.Equal(t, "7", api.form("deleteMessage")["message_id"])
		})
	}
}

func TestTelegramSendMessage(t *testing.T) {
	tg, api := newTestTelegram(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":55,"date":1700000000,"chat":{"id":-100,"type":"supergroup"},"text":"hola"}}`,
	})

	thread := 9
	id, err := tg.SendMessage(context.Background(), Message{
		ChatID:   -100,
		ThreadID: &thread,
		Text:     "<b>hola</b>",
		HTML:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 55, id)

	form := api.form("sendMessage")
	assert.Equal(t, "HTML", form["parse_mode"])
	assert.Equal(t, "9", form["message_thread_id"])
}
