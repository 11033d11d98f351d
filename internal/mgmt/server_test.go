package mgmt

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/internal/health"
	"github.com/nightwatch-dev/nightwatch/internal/store"
)

// mockSessions implements SessionController.
type mockSessions struct {
	active      *store.Session
	forceClosed []int64
}

func (m *mockSessions) ActiveSession(int64) (*store.Session, error) {
	return m.active, nil
}

func (m *mockSessions) ForceClose(_ context.Context, chatID int64) error {
	m.forceClosed = append(m.forceClosed, chatID)
	m.active = nil
	return nil
}

func testServer(t *testing.T, apiKey string) (*fiber.App, *store.Store, *mockSessions) {
	t.Helper()
	logger := zerolog.Nop()

	dbPath := filepath.Join(t.TempDir(), "mgmt-test.db")
	st, err := store.New(dbPath, zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := &mockSessions{}
	srv := NewServer(ServerConfig{
		ListenAddr: ":0",
		APIKey:     apiKey,
	}, st, sessions, health.NewChecker(logger), logger)

	return srv.App(), st, sessions
}

func jsonRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	return req
}

func decodeChat(t *testing.T, resp *http.Response) ChatResponse {
	t.Helper()
	var chat ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	return chat
}

func TestServer_Healthz(t *testing.T) {
	app, _, _ := testServer(t, "")

	resp, err := app.Test(jsonRequest("GET", "/healthz", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_RegisterAndGetChat(t *testing.T) {
	app, _, _ := testServer(t, "")

	body := `{"chat_id":-100123,"title":"Night Owls","start_time":"23:00","end_time":"05:00","notify_text":"shh"}`
	resp, err := app.Test(jsonRequest("POST", "/api/v1/chats", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	chat := decodeChat(t, resp)
	assert.Equal(t, int64(-100123), chat.ChatID)
	assert.Equal(t, "Night Owls", chat.Title)
	assert.False(t, chat.Enabled)

	resp, err = app.Test(jsonRequest("GET", "/api/v1/chats/-100123", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	chat = decodeChat(t, resp)
	assert.Equal(t, "23:00", chat.StartTime)
}

func TestServer_RegisterChatInvalidWindow(t *testing.T) {
	app, _, _ := testServer(t, "")

	body := `{"chat_id":-1,"start_time":"23:00","end_time":"23:00"}`
	resp, err := app.Test(jsonRequest("POST", "/api/v1/chats", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_window", problem.Type)
}

func TestServer_GetUnknownChat(t *testing.T) {
	app, _, _ := testServer(t, "")

	resp, err := app.Test(jsonRequest("GET", "/api/v1/chats/42", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_BadChatIDParam(t *testing.T) {
	app, _, _ := testServer(t, "")

	resp, err := app.Test(jsonRequest("GET", "/api/v1/chats/abc", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ListChats(t *testing.T) {
	app, st, _ := testServer(t, "")
	require.NoError(t, st.UpsertChat(-1, "a", "23:00", "05:00", ""))
	require.NoError(t, st.UpsertChat(-2, "b", "22:00", "06:00", ""))

	resp, err := app.Test(jsonRequest("GET", "/api/v1/chats", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list ChatListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Chats, 2)
}

func TestServer_PatchEnabled(t *testing.T) {
	app, st, _ := testServer(t, "")
	require.NoError(t, st.UpsertChat(-1, "", "23:00", "05:00", ""))

	resp, err := app.Test(jsonRequest("PATCH", "/api/v1/chats/-1/enabled", `{"enabled":true}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeChat(t, resp).Enabled)

	// Missing field is a client error, not a silent false.
	resp, err = app.Test(jsonRequest("PATCH", "/api/v1/chats/-1/enabled", `{}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_PatchWindow(t *testing.T) {
	app, st, _ := testServer(t, "")
	require.NoError(t, st.UpsertChat(-1, "", "23:00", "05:00", ""))

	resp, err := app.Test(jsonRequest("PATCH", "/api/v1/chats/-1/window", `{"start_time":"21:15","end_time":"07:45"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	chat := decodeChat(t, resp)
	assert.Equal(t, "21:15", chat.StartTime)
	assert.Equal(t, "07:45", chat.EndTime)

	resp, err = app.Test(jsonRequest("PATCH", "/api/v1/chats/-1/window", `{"start_time":"10:00","end_time":"10:00"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_PatchNotifyText(t *testing.T) {
	app, st, _ := testServer(t, "")
	require.NoError(t, st.UpsertChat(-1, "", "23:00", "05:00", "old"))

	resp, err := app.Test(jsonRequest("PATCH", "/api/v1/chats/-1/notify-text", `{"notify_text":"new banner"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new banner", decodeChat(t, resp).NotifyText)
}

func TestServer_ActiveSession(t *testing.T) {
	app, st, sessions := testServer(t, "")
	require.NoError(t, st.UpsertChat(-1, "", "23:00", "05:00", ""))

	resp, err := app.Test(jsonRequest("GET", "/api/v1/chats/-1/session", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = st.OpenSession(-1, "s1", "05:00")
	require.NoError(t, err)
	sessions.active = &store.Session{SessionID: "s1", ChatID: -1, OpenedAt: 123, ScheduledClose: "05:00"}

	resp, err = app.Test(jsonRequest("GET", "/api/v1/chats/-1/session", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sess SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, "s1", sess.SessionID)
	assert.Equal(t, "05:00", sess.ScheduledClose)
}

func TestServer_ForceClose(t *testing.T) {
	app, _, sessions := testServer(t, "")

	// Nothing open: conflict.
	resp, err := app.Test(jsonRequest("POST", "/api/v1/chats/-1/force-close", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sessions.active = &store.Session{SessionID: "s1", ChatID: -1}
	resp, err = app.Test(jsonRequest("POST", "/api/v1/chats/-1/force-close", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{-1}, sessions.forceClosed)
}

func TestServer_APIKeyAuth(t *testing.T) {
	app, _, _ := testServer(t, "secret-key")

	// Probes stay open.
	resp, err := app.Test(jsonRequest("GET", "/healthz", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API routes require the key.
	resp, err = app.Test(jsonRequest("GET", "/api/v1/chats", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := jsonRequest("GET", "/api/v1/chats", "")
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = jsonRequest("GET", "/api/v1/chats", "")
	req.Header.Set("Authorization", "Bearer secret-key")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
