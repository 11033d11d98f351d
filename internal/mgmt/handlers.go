package mgmt

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/health"
	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
	"github.com/nightwatch-dev/nightwatch/internal/store"
)

// SessionController is the slice of the controller the API needs.
type SessionController interface {
	ActiveSession(chatID int64) (*store.Session, error)
	ForceClose(ctx context.Context, chatID int64) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store    *store.Store
	sessions SessionController
	checker  *health.Checker
	logger   zerolog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(st *store.Store, sessions SessionController, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:    st,
		sessions: sessions,
		checker:  checker,
		logger:   logger.With().Str("component", "mgmt_handlers").Logger(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// ListChats handles GET /api/v1/chats.
func (h *Handlers) ListChats(c *fiber.Ctx) error {
	chats, err := h.store.ListChats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	resp := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		resp = append(resp, chatResponse(&chat))
	}
	return c.JSON(ChatListResponse{Chats: resp, Total: len(resp)})
}

// RegisterChat handles POST /api/v1/chats.
func (h *Handlers) RegisterChat(c *fiber.Ctx) error {
	var req RegisterChatRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.ChatID == 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_chat_id", "Bad Request",
			"chat_id is required")
	}

	if err := h.store.UpsertChat(req.ChatID, req.Title, req.StartTime, req.EndTime, req.NotifyText); err != nil {
		if errors.Is(err, nighterrors.ErrInvalidWindow) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_window", "Bad Request", err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	chat, err := h.store.GetChat(req.ChatID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(chatResponse(chat))
}

// GetChat handles GET /api/v1/chats/:id.
func (h *Handlers) GetChat(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	chat, err := h.store.GetChat(chatID)
	if err != nil {
		if errors.Is(err, nighterrors.ErrNotFound) {
			return problemResponse(c, fiber.StatusNotFound,
				"chat_not_found", "Not Found",
				"Chat not found: "+c.Params("id"))
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(chatResponse(chat))
}

// PatchEnabled handles PATCH /api/v1/chats/:id/enabled.
func (h *Handlers) PatchEnabled(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	var req PatchEnabledRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Enabled == nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_enabled", "Bad Request",
			"enabled is required")
	}

	if err := h.store.SetEnabled(chatID, *req.Enabled); err != nil {
		return h.storeError(c, err)
	}
	return h.respondChat(c, chatID)
}

// PatchWindow handles PATCH /api/v1/chats/:id/window.
func (h *Handlers) PatchWindow(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	var req PatchWindowRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	if err := h.store.SetWindow(chatID, req.StartTime, req.EndTime); err != nil {
		if errors.Is(err, nighterrors.ErrInvalidWindow) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_window", "Bad Request", err.Error())
		}
		return h.storeError(c, err)
	}
	return h.respondChat(c, chatID)
}

// PatchNotifyText handles PATCH /api/v1/chats/:id/notify-text.
func (h *Handlers) PatchNotifyText(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	var req PatchNotifyTextRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.NotifyText == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_notify_text", "Bad Request",
			"notify_text is required")
	}

	if err := h.store.SetNotifyText(chatID, req.NotifyText); err != nil {
		return h.storeError(c, err)
	}
	return h.respondChat(c, chatID)
}

// GetActiveSession handles GET /api/v1/chats/:id/session.
func (h *Handlers) GetActiveSession(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	sess, err := h.sessions.ActiveSession(chatID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if sess == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"no_active_session", "Not Found",
			"No active session for chat "+c.Params("id"))
	}

	count, err := h.store.CountForSession(sess.SessionID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(SessionResponse{
		SessionID:      sess.SessionID,
		ChatID:         sess.ChatID,
		OpenedAt:       sess.OpenedAt,
		ScheduledClose: sess.ScheduledClose,
		MessageCount:   count,
	})
}

// ForceClose handles POST /api/v1/chats/:id/force-close. The purge runs
// before the call returns.
func (h *Handlers) ForceClose(c *fiber.Ctx) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return err
	}

	sess, err := h.sessions.ActiveSession(chatID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if sess == nil {
		return problemResponse(c, fiber.StatusConflict,
			"no_active_session", "Conflict",
			"No active session to close for chat "+c.Params("id"))
	}

	if err := h.sessions.ForceClose(c.Context(), chatID); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "closed", "session_id": sess.SessionID})
}

func (h *Handlers) respondChat(c *fiber.Ctx, chatID int64) error {
	chat, err := h.store.GetChat(chatID)
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(chatResponse(chat))
}

func (h *Handlers) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, nighterrors.ErrNotFound) {
		return problemResponse(c, fiber.StatusNotFound,
			"chat_not_found", "Not Found",
			"Chat not found: "+c.Params("id"))
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

func chatIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "chat id must be an integer")
	}
	return id, nil
}

func chatResponse(chat *store.ChatConfig) ChatResponse {
	return ChatResponse{
		ChatID:      chat.ChatID,
		Title:       chat.Title,
		Enabled:     chat.Enabled,
		StartTime:   chat.StartTime,
		EndTime:     chat.EndTime,
		NotifyText:  chat.NotifyText,
		QuietActive: chat.QuietActive,
		AddedAt:     chat.AddedAt,
	}
}
