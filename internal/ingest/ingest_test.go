package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/internal/metrics"
	"github.com/nightwatch-dev/nightwatch/internal/store"
	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

// mockClient implements BotClient.
type mockClient struct {
	sent      []sentCall
	answered  []string
	admins    []int64
	adminsErr error
}

type sentCall struct {
	chatID int64
	text   string
	markup any
}

func (m *mockClient) GetUpdates(context.Context, int64, int) ([]telegram.Update, error) {
	return nil, nil
}

func (m *mockClient) SendMessage(_ context.Context, chatID int64, text string) error {
	m.sent = append(m.sent, sentCall{chatID: chatID, text: text})
	return nil
}

func (m *mockClient) SendMessageMarkup(_ context.Context, chatID int64, text string, markup any) error {
	m.sent = append(m.sent, sentCall{chatID: chatID, text: text, markup: markup})
	return nil
}

func (m *mockClient) AnswerCallbackQuery(_ context.Context, callbackID string) error {
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *mockClient) GetChatAdministrators(context.Context, int64) ([]int64, error) {
	if m.adminsErr != nil {
		return nil, m.adminsErr
	}
	return m.admins, nil
}

// mockSessions implements Sessions.
type mockSessions struct {
	active      *store.Session
	forceClosed []int64
}

func (m *mockSessions) ActiveSession(int64) (*store.Session, error) {
	return m.active, nil
}

func (m *mockSessions) ForceClose(_ context.Context, chatID int64) error {
	m.forceClosed = append(m.forceClosed, chatID)
	return nil
}

type testEnv struct {
	ing      *Ingestor
	client   *mockClient
	sessions *mockSessions
	store    *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ingest-test.db")
	st, err := store.New(dbPath, zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := &mockClient{}
	sessions := &mockSessions{}
	ing := New(Config{
		DefaultStartTime:  "23:00",
		DefaultEndTime:    "05:00",
		DefaultNotifyText: "quiet now",
	}, client, sessions, st, metrics.New(), zerolog.New(os.Stderr))

	return &testEnv{ing: ing, client: client, sessions: sessions, store: st}
}

func groupMessage(chatID, messageID, senderID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: messageID,
		Message: &telegram.Message{
			MessageID: messageID,
			From:      &telegram.User{ID: senderID},
			Chat:      telegram.Chat{ID: chatID, Type: "supergroup"},
			Text:      text,
		},
	}
}

func privateMessage(userID int64, text string) telegram.Update {
	return telegram.Update{
		Message: &telegram.Message{
			MessageID: 1,
			From:      &telegram.User{ID: userID},
			Chat:      telegram.Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}

func TestGroup_CaptureDuringSession(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))
	_, err := env.store.OpenSession(-5, "s1", "05:00")
	require.NoError(t, err)
	env.sessions.active = &store.Session{SessionID: "s1", ChatID: -5}

	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 10, 77, "late night chatter"))

	msgs, err := env.store.MessagesForSession("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].MessageID)
	assert.Equal(t, int64(77), msgs[0].SenderID)
	assert.Equal(t, KindText, msgs[0].Kind)
	assert.Equal(t, "late night chatter", msgs[0].Summary)
}

func TestGroup_NoCaptureWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 10, 77, "daytime"))

	n, err := env.store.CountForSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGroup_NoCaptureAfterSessionCloses(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))
	_, err := env.store.OpenSession(-5, "s1", "05:00")
	require.NoError(t, err)
	env.sessions.active = &store.Session{SessionID: "s1", ChatID: -5}

	// The ingestor still sees s1 as active, but the purge and close have
	// already run underneath it.
	require.NoError(t, env.store.DeleteMessagesForSession("s1"))
	require.NoError(t, env.store.CloseSession("s1", 0))

	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 10, 77, "straggler"))

	n, err := env.store.CountForSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGroup_TitleRefreshed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "Old name", "23:00", "05:00", ""))

	upd := groupMessage(-5, 10, 77, "morning")
	upd.Message.Chat.Title = "New name"
	env.ing.HandleUpdate(context.Background(), upd)

	chat, err := env.store.GetChat(-5)
	require.NoError(t, err)
	assert.Equal(t, "New name", chat.Title)
}

func TestGroup_TitleFromUnknownChatIgnored(t *testing.T) {
	env := newTestEnv(t)

	upd := groupMessage(-9, 10, 77, "hi")
	upd.Message.Chat.Title = "Unregistered"
	env.ing.HandleUpdate(context.Background(), upd)

	_, err := env.store.GetChat(-9)
	require.Error(t, err)
}

func TestGroup_MediaCaptured(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))
	_, err := env.store.OpenSession(-5, "s1", "05:00")
	require.NoError(t, err)
	env.sessions.active = &store.Session{SessionID: "s1", ChatID: -5}

	env.ing.HandleUpdate(context.Background(), telegram.Update{
		Message: &telegram.Message{
			MessageID: 11,
			From:      &telegram.User{ID: 77},
			Chat:      telegram.Chat{ID: -5, Type: "supergroup"},
			Sticker:   &telegram.Sticker{Emoji: "🌙"},
		},
	})

	msgs, err := env.store.MessagesForSession("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, KindSticker, msgs[0].Kind)
}

func TestGroup_IDCommand(t *testing.T) {
	env := newTestEnv(t)

	env.ing.HandleUpdate(context.Background(), groupMessage(-100555, 1, 77, "/id"))

	require.Len(t, env.client.sent, 1)
	assert.Equal(t, int64(-100555), env.client.sent[0].chatID)
	assert.Contains(t, env.client.sent[0].text, "-100555")
}

func TestGroup_CommandsNotCaptured(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.active = &store.Session{SessionID: "s1", ChatID: -5}
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))
	_, err := env.store.OpenSession(-5, "s1", "05:00")
	require.NoError(t, err)

	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 1, 77, "/id"))
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 2, 77, "/status"))

	n, err := env.store.CountForSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGroup_StatusStates(t *testing.T) {
	env := newTestEnv(t)

	// Unknown chat.
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 1, 77, "/status"))
	require.Len(t, env.client.sent, 1)
	assert.Contains(t, env.client.sent[0].text, "not enabled")

	// Enabled, waiting.
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))
	require.NoError(t, env.store.SetEnabled(-5, true))
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 2, 77, "/status"))
	require.Len(t, env.client.sent, 2)
	assert.Contains(t, env.client.sent[1].text, "waiting")
	assert.Contains(t, env.client.sent[1].text, "23:00")

	// Active.
	env.sessions.active = &store.Session{SessionID: "s1", ChatID: -5}
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 3, 77, "/status"))
	require.Len(t, env.client.sent, 3)
	assert.Contains(t, env.client.sent[2].text, "active")
	assert.Contains(t, env.client.sent[2].text, "05:00")
}

func TestGroup_ForceCleanupAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.client.admins = []int64{77}

	// Non-admin is silently ignored.
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 1, 999, "/force_cleanup"))
	assert.Empty(t, env.sessions.forceClosed)

	// Admin triggers the close.
	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 2, 77, "/force_cleanup"))
	assert.Equal(t, []int64{-5}, env.sessions.forceClosed)
}

func TestGroup_ForceCleanupAdminLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.client.adminsErr = errors.New("api down")

	env.ing.HandleUpdate(context.Background(), groupMessage(-5, 1, 77, "/force_cleanup"))
	assert.Empty(t, env.sessions.forceClosed, "lookup failure denies the command")
}

func TestPrivate_MainMenu(t *testing.T) {
	env := newTestEnv(t)

	env.ing.HandleUpdate(context.Background(), privateMessage(77, "/start"))

	require.Len(t, env.client.sent, 1)
	assert.Contains(t, env.client.sent[0].text, "quiet-hours bot")
	assert.NotNil(t, env.client.sent[0].markup)
}

func TestPrivate_AddChatFlow(t *testing.T) {
	env := newTestEnv(t)

	env.ing.HandleUpdate(context.Background(), privateMessage(77, "➕ Add chat"))
	require.Len(t, env.client.sent, 1)
	assert.Contains(t, env.client.sent[0].text, "id of the group chat")

	env.ing.HandleUpdate(context.Background(), privateMessage(77, "-100987"))

	chat, err := env.store.GetChat(-100987)
	require.NoError(t, err)
	assert.Equal(t, "23:00", chat.StartTime)
	assert.Equal(t, "05:00", chat.EndTime)
	assert.Equal(t, "quiet now", chat.NotifyText)

	// Confirmation plus the settings screen.
	texts := sentTexts(env.client)
	assert.True(t, containsSubstring(texts, "✅ Chat -100987 added"))
	assert.True(t, containsSubstring(texts, "Chat settings"))
}

func TestPrivate_AddChatRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)

	env.ing.HandleUpdate(context.Background(), privateMessage(77, "➕ Add chat"))
	env.ing.HandleUpdate(context.Background(), privateMessage(77, "not-a-number"))

	texts := sentTexts(env.client)
	assert.True(t, containsSubstring(texts, "not a numeric chat id"))

	// The flow stays pending and accepts a retry.
	env.ing.HandleUpdate(context.Background(), privateMessage(77, "-42"))
	_, err := env.store.GetChat(-42)
	assert.NoError(t, err)
}

func TestPrivate_EditWindowFlow(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))

	// Press the edit-start button, then send a new time.
	env.ing.HandleUpdate(context.Background(), callbackUpdate(77, "edit_start_-5"))
	env.ing.HandleUpdate(context.Background(), privateMessage(77, "22:30"))

	chat, err := env.store.GetChat(-5)
	require.NoError(t, err)
	assert.Equal(t, "22:30", chat.StartTime)
	assert.Equal(t, "05:00", chat.EndTime)
}

func TestPrivate_EditWindowRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))

	env.ing.HandleUpdate(context.Background(), callbackUpdate(77, "edit_end_-5"))
	env.ing.HandleUpdate(context.Background(), privateMessage(77, "23:00"))

	// start == end rejected, stored window untouched, flow still pending.
	chat, err := env.store.GetChat(-5)
	require.NoError(t, err)
	assert.Equal(t, "05:00", chat.EndTime)
	assert.True(t, containsSubstring(sentTexts(env.client), "must differ"))

	env.ing.HandleUpdate(context.Background(), privateMessage(77, "06:15"))
	chat, err = env.store.GetChat(-5)
	require.NoError(t, err)
	assert.Equal(t, "06:15", chat.EndTime)
}

func TestCallback_ToggleEnabled(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", ""))

	env.ing.HandleUpdate(context.Background(), callbackUpdate(77, "toggle_-5"))

	chat, err := env.store.GetChat(-5)
	require.NoError(t, err)
	assert.True(t, chat.Enabled)
	assert.Equal(t, []string{"cb1"}, env.client.answered)

	env.ing.HandleUpdate(context.Background(), callbackUpdate(77, "toggle_-5"))
	chat, err = env.store.GetChat(-5)
	require.NoError(t, err)
	assert.False(t, chat.Enabled)
}

func TestCallback_EditNotifyText(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertChat(-5, "", "23:00", "05:00", "old"))

	env.ing.HandleUpdate(context.Background(), callbackUpdate(77, "edit_text_-5"))
	env.ing.HandleUpdate(context.Background(), privateMessage(77, "🌙 New quiet-hours banner"))

	chat, err := env.store.GetChat(-5)
	require.NoError(t, err)
	assert.Equal(t, "🌙 New quiet-hours banner", chat.NotifyText)
}

func callbackUpdate(userID int64, data string) telegram.Update {
	return telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb1",
			From: telegram.User{ID: userID},
			Data: data,
			Message: &telegram.Message{
				MessageID: 1,
				Chat:      telegram.Chat{ID: userID, Type: "private"},
			},
		},
	}
}

func sentTexts(c *mockClient) []string {
	texts := make([]string, 0, len(c.sent))
	for _, s := range c.sent {
		texts = append(texts, s.text)
	}
	return texts
}

func containsSubstring(texts []string, sub string) bool {
	for _, t := range texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}
