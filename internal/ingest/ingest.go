// Package ingest consumes inbound Telegram updates. Group messages sent
// during an open quiet-hours session are captured into the retention store;
// private messages drive the settings menu.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/metrics"
	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
	"github.com/nightwatch-dev/nightwatch/internal/store"
	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

// BotClient abstracts the Telegram calls the ingestor makes.
type BotClient interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageMarkup(ctx context.Context, chatID int64, text string, markup any) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

// Sessions is the controller's read side plus the admin force-close.
type Sessions interface {
	ActiveSession(chatID int64) (*store.Session, error)
	ForceClose(ctx context.Context, chatID int64) error
}

// Config configures the ingestor.
type Config struct {
	PollTimeout       int // long-poll hold in seconds
	DefaultStartTime  string
	DefaultEndTime    string
	DefaultNotifyText string
	StateTTL          time.Duration
}

// Ingestor is the inbound update loop.
type Ingestor struct {
	cfg      Config
	client   BotClient
	sessions Sessions
	store    *store.Store
	states   *StateStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	offset int64
}

// New creates an Ingestor.
func New(cfg Config, client BotClient, sessions Sessions, st *store.Store, m *metrics.Metrics, logger zerolog.Logger) *Ingestor {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 25
	}
	return &Ingestor{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		store:    st,
		states:   NewStateStore(cfg.StateTTL),
		metrics:  m,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Run long-polls for updates until ctx is cancelled. Poll failures back off
// for a bounded interval rather than spinning.
func (i *Ingestor) Run(ctx context.Context) {
	i.logger.Info().Msg("ingest loop starting")
	for {
		if ctx.Err() != nil {
			i.logger.Info().Msg("ingest loop stopped")
			return
		}

		updates, err := i.client.GetUpdates(ctx, i.offset, i.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.Error().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			i.HandleUpdate(ctx, upd)
			if upd.UpdateID >= i.offset {
				i.offset = upd.UpdateID + 1
			}
		}

		if dropped := i.states.Cleanup(); dropped > 0 {
			i.logger.Debug().Int("dropped", dropped).Msg("expired menu states")
		}
	}
}

// HandleUpdate dispatches one update. Errors are logged, never propagated;
// one bad update must not stall the loop.
func (i *Ingestor) HandleUpdate(ctx context.Context, upd telegram.Update) {
	switch {
	case upd.Message != nil:
		i.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		i.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (i *Ingestor) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}
	if msg.Chat.ID > 0 {
		// Private chat: only text drives the settings menu.
		if msg.Text != "" {
			i.handlePrivate(ctx, msg)
		}
		return
	}
	i.handleGroup(ctx, msg)
}

func (i *Ingestor) handleGroup(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	// Keep the stored title current for registered chats; a rename only
	// reaches us through group traffic.
	if msg.Chat.Title != "" {
		if err := i.store.SetTitle(chatID, msg.Chat.Title); err != nil && !nighterrors.IsNotFound(err) {
			i.logger.Warn().Err(err).Int64("chat", chatID).Msg("title refresh failed")
		}
	}

	if Classify(msg) == KindText {
		switch msg.Text {
		case "/id":
			text := fmt.Sprintf("🆔 This chat's id: <code>%d</code>\n\nUse it to configure quiet hours in a private chat with the bot.", chatID)
			i.send(ctx, chatID, text)
			return
		case "/start":
			i.sendGroupHelp(ctx, chatID)
			return
		case "/status":
			i.sendGroupStatus(ctx, chatID)
			return
		case "/force_cleanup":
			i.forceCleanup(ctx, chatID, msg.From.ID)
			return
		}
	}

	i.capture(ctx, msg)
}

// capture records the message when the chat has an open session.
func (i *Ingestor) capture(_ context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	sess, err := i.sessions.ActiveSession(chatID)
	if err != nil {
		i.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to read active session")
		return
	}
	if sess == nil {
		return
	}

	m := &store.CapturedMessage{
		SessionID: sess.SessionID,
		ChatID:    chatID,
		MessageID: msg.MessageID,
		SenderID:  msg.From.ID,
		Kind:      Classify(msg),
		Summary:   Summarize(msg),
	}
	if err := i.store.AppendMessage(m); err != nil {
		if errors.Is(err, nighterrors.ErrSessionClosed) {
			// Session closed between the read and the append; the message
			// arrived after the window and is left alone.
			i.logger.Debug().Int64("chat", chatID).Int64("message_id", msg.MessageID).Msg("session closed before capture")
			return
		}
		i.logger.Error().Err(err).Int64("chat", chatID).Int64("message_id", msg.MessageID).Msg("failed to capture message")
		return
	}
	i.metrics.MessagesCaptured.Inc()
	i.logger.Debug().
		Int64("chat", chatID).
		Int64("message_id", msg.MessageID).
		Str("kind", m.Kind).
		Str("session", sess.SessionID).
		Msg("message captured")
}

func (i *Ingestor) forceCleanup(ctx context.Context, chatID, userID int64) {
	admins, err := i.client.GetChatAdministrators(ctx, chatID)
	if err != nil {
		i.logger.Warn().Err(err).Int64("chat", chatID).Msg("admin lookup failed")
		return
	}
	isAdmin := false
	for _, id := range admins {
		if id == userID {
			isAdmin = true
			break
		}
	}
	if !isAdmin {
		return
	}
	if err := i.sessions.ForceClose(ctx, chatID); err != nil {
		i.logger.Error().Err(err).Int64("chat", chatID).Msg("force cleanup failed")
	}
}

func (i *Ingestor) sendGroupHelp(ctx context.Context, chatID int64) {
	text := fmt.Sprintf(`🤖 <b>Nightwatch quiet-hours bot</b>

<b>Commands:</b>
/id - Show this chat's id
/status - Quiet-hours status
/force_cleanup - Close the current session now (admins)

<b>This chat's id:</b> <code>%d</code>

To configure, message the bot privately and use the id above.`, chatID)
	i.send(ctx, chatID, text)
}

func (i *Ingestor) sendGroupStatus(ctx context.Context, chatID int64) {
	chat, err := i.store.GetChat(chatID)
	if err != nil || !chat.Enabled {
		i.send(ctx, chatID, "🔴 Quiet hours are not enabled for this chat.")
		return
	}

	sess, err := i.sessions.ActiveSession(chatID)
	if err != nil {
		i.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to read active session")
		return
	}

	var text string
	if sess != nil {
		count, _ := i.store.CountForSession(sess.SessionID)
		text = fmt.Sprintf("🔴 Quiet hours <b>active</b> — messages are being recorded.\n💾 Recorded: %d\n⏰ Cleanup at: %s", count, chat.EndTime)
	} else {
		text = fmt.Sprintf("🟢 Quiet hours enabled, waiting.\n⏰ Starts at: %s", chat.StartTime)
	}
	i.send(ctx, chatID, text)
}

func (i *Ingestor) send(ctx context.Context, chatID int64, text string) {
	if err := i.client.SendMessage(ctx, chatID, text); err != nil {
		i.logger.Warn().Err(err).Int64("chat", chatID).Msg("send failed")
	}
}
