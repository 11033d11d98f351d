package mgmt

import "github.com/gofiber/fiber/v2"

// ChatResponse is a chat's configuration as served by the API.
type ChatResponse struct {
	ChatID      int64  `json:"chat_id"`
	Title       string `json:"title,omitempty"`
	Enabled     bool   `json:"enabled"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	NotifyText  string `json:"notify_text"`
	QuietActive bool   `json:"quiet_active"`
	AddedAt     int64  `json:"added_at"`
}

// ChatListResponse wraps GET /api/v1/chats.
type ChatListResponse struct {
	Chats []ChatResponse `json:"chats"`
	Total int            `json:"total"`
}

// RegisterChatRequest is the body of POST /api/v1/chats.
type RegisterChatRequest struct {
	ChatID     int64  `json:"chat_id"`
	Title      string `json:"title"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	NotifyText string `json:"notify_text"`
}

// PatchEnabledRequest is the body of PATCH /api/v1/chats/:id/enabled. Enabled
// is a pointer so "false" and "absent" are distinguishable.
type PatchEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// PatchWindowRequest is the body of PATCH /api/v1/chats/:id/window.
type PatchWindowRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// PatchNotifyTextRequest is the body of PATCH /api/v1/chats/:id/notify-text.
type PatchNotifyTextRequest struct {
	NotifyText string `json:"notify_text"`
}

// SessionResponse describes an open quiet-hours session.
type SessionResponse struct {
	SessionID      string `json:"session_id"`
	ChatID         int64  `json:"chat_id"`
	OpenedAt       int64  `json:"opened_at"`
	ScheduledClose string `json:"scheduled_close"`
	MessageCount   int    `json:"message_count"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
