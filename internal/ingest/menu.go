package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

// Menu button labels.
const (
	btnMyChats  = "📋 My chats"
	btnAddChat  = "➕ Add chat"
	btnHelp     = "❓ Help"
	btnMainMenu = "🔙 Main menu"
)

// handlePrivate drives the settings conversation in a one-on-one chat.
func (i *Ingestor) handlePrivate(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	replyTo := msg.Chat.ID
	text := msg.Text

	if st, ok := i.states.Get(userID); ok {
		i.continueFlow(ctx, st, userID, replyTo, text)
		return
	}

	switch text {
	case "/start", btnMainMenu:
		i.sendMainMenu(ctx, replyTo)
	case btnMyChats:
		i.sendChatList(ctx, replyTo)
	case btnAddChat:
		i.states.Set(userID, stepAwaitChatID, 0)
		i.send(ctx, replyTo, "📝 Send the id of the group chat to add.\n\nAdd the bot to the group and send /id there to find it.")
	case btnHelp:
		i.sendHelp(ctx, replyTo)
	default:
		i.sendMainMenu(ctx, replyTo)
	}
}

// continueFlow consumes the reply a pending conversation step was waiting
// for.
func (i *Ingestor) continueFlow(ctx context.Context, st *userState, userID, replyTo int64, text string) {
	switch st.Step {
	case stepAwaitChatID:
		target, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			i.send(ctx, replyTo, "❌ That is not a numeric chat id. Try again.")
			return
		}
		if err := i.store.UpsertChat(target, "", i.cfg.DefaultStartTime, i.cfg.DefaultEndTime, i.cfg.DefaultNotifyText); err != nil {
			i.logger.Error().Err(err).Int64("chat", target).Msg("failed to register chat")
			i.send(ctx, replyTo, "❌ Could not add the chat. Try again later.")
			return
		}
		i.states.Clear(userID)
		i.send(ctx, replyTo, fmt.Sprintf("✅ Chat %d added.", target))
		i.sendChatSettings(ctx, replyTo, target)

	case stepAwaitStart, stepAwaitEnd:
		chat, err := i.store.GetChat(st.ChatID)
		if err != nil {
			i.states.Clear(userID)
			i.send(ctx, replyTo, "❌ Chat not found.")
			return
		}
		start, end := text, chat.EndTime
		if st.Step == stepAwaitEnd {
			start, end = chat.StartTime, text
		}
		if err := i.store.SetWindow(st.ChatID, start, end); err != nil {
			if errors.Is(err, nighterrors.ErrInvalidWindow) {
				i.send(ctx, replyTo, "❌ Use HH:MM (24h), and the start and end must differ. Example: 23:00")
				return
			}
			i.logger.Error().Err(err).Int64("chat", st.ChatID).Msg("failed to set window")
			i.send(ctx, replyTo, "❌ Could not update the window. Try again later.")
			return
		}
		i.states.Clear(userID)
		i.send(ctx, replyTo, fmt.Sprintf("✅ Window updated: %s – %s", start, end))
		i.sendChatSettings(ctx, replyTo, st.ChatID)

	case stepAwaitText:
		if err := i.store.SetNotifyText(st.ChatID, text); err != nil {
			i.logger.Error().Err(err).Int64("chat", st.ChatID).Msg("failed to set notify text")
			i.send(ctx, replyTo, "❌ Could not update the message. Try again later.")
			return
		}
		i.states.Clear(userID)
		i.send(ctx, replyTo, "✅ Notification text updated.")
		i.sendChatSettings(ctx, replyTo, st.ChatID)

	default:
		i.states.Clear(userID)
		i.sendMainMenu(ctx, replyTo)
	}
}

// handleCallback reacts to inline-button presses from the settings menus.
func (i *Ingestor) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	userID := cb.From.ID
	replyTo := cb.Message.Chat.ID

	defer func() {
		if err := i.client.AnswerCallbackQuery(ctx, cb.ID); err != nil {
			i.logger.Debug().Err(err).Msg("answerCallbackQuery failed")
		}
	}()

	switch {
	case cb.Data == "main_menu":
		i.sendMainMenu(ctx, replyTo)

	case strings.HasPrefix(cb.Data, "select_chat_"):
		if id, ok := parseChatID(cb.Data, "select_chat_"); ok {
			i.sendChatSettings(ctx, replyTo, id)
		}

	case strings.HasPrefix(cb.Data, "toggle_"):
		id, ok := parseChatID(cb.Data, "toggle_")
		if !ok {
			return
		}
		chat, err := i.store.GetChat(id)
		if err != nil {
			i.send(ctx, replyTo, "❌ Chat not found.")
			return
		}
		if err := i.store.SetEnabled(id, !chat.Enabled); err != nil {
			i.logger.Error().Err(err).Int64("chat", id).Msg("failed to toggle")
			return
		}
		if chat.Enabled {
			i.send(ctx, replyTo, "✅ Quiet hours disabled.")
		} else {
			i.send(ctx, replyTo, "✅ Quiet hours enabled.")
		}
		i.sendChatSettings(ctx, replyTo, id)

	case strings.HasPrefix(cb.Data, "edit_start_"):
		if id, ok := parseChatID(cb.Data, "edit_start_"); ok {
			i.states.Set(userID, stepAwaitStart, id)
			i.send(ctx, replyTo, "⏰ Send the start time, HH:MM 24h. Example: 23:00\n\nAt this time the bot posts the notification and starts recording messages.")
		}

	case strings.HasPrefix(cb.Data, "edit_end_"):
		if id, ok := parseChatID(cb.Data, "edit_end_"); ok {
			i.states.Set(userID, stepAwaitEnd, id)
			i.send(ctx, replyTo, "⏰ Send the end time, HH:MM 24h. Example: 05:00\n\nAt this time the bot deletes everything recorded during the window.")
		}

	case strings.HasPrefix(cb.Data, "edit_text_"):
		if id, ok := parseChatID(cb.Data, "edit_text_"); ok {
			i.states.Set(userID, stepAwaitText, id)
			i.send(ctx, replyTo, "📝 Send the notification text posted when quiet hours begin.")
		}
	}
}

func parseChatID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

func (i *Ingestor) sendMainMenu(ctx context.Context, chatID int64) {
	text := `🤖 <b>Nightwatch quiet-hours bot</b>

• 💾 Messages are recorded during quiet hours
• 🗑️ Everything recorded is deleted when the window ends
• 📊 You get a report of what was removed

Pick an action:`
	markup := telegram.ReplyKeyboard([]string{btnMyChats, btnAddChat, btnHelp}, 2)
	i.sendMarkup(ctx, chatID, text, markup)
}

func (i *Ingestor) sendChatList(ctx context.Context, chatID int64) {
	chats, err := i.store.ListChats()
	if err != nil {
		i.logger.Error().Err(err).Msg("failed to list chats")
		return
	}

	if len(chats) == 0 {
		markup := telegram.ReplyKeyboard([]string{btnAddChat, btnMainMenu}, 1)
		i.sendMarkup(ctx, chatID, "📋 <b>My chats</b>\n\nNo chats configured yet. Use \"➕ Add chat\" to add one.", markup)
		return
	}

	var rows [][]telegram.InlineKeyboardButton
	for _, c := range chats {
		status := "🔴"
		if c.Enabled {
			status = "🟢"
		}
		name := c.Title
		if name == "" {
			name = fmt.Sprintf("Chat %d", c.ChatID)
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         status + " " + name,
			CallbackData: fmt.Sprintf("select_chat_%d", c.ChatID),
		}})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{{Text: btnMainMenu, CallbackData: "main_menu"}})

	i.sendMarkup(ctx, chatID, "📋 <b>My chats</b>\n\nPick a chat to configure:", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (i *Ingestor) sendChatSettings(ctx context.Context, replyTo, target int64) {
	chat, err := i.store.GetChat(target)
	if err != nil {
		i.send(ctx, replyTo, "❌ Chat not found.")
		return
	}

	mode := "🔴 OFF"
	toggleLabel := "🟢 Enable"
	if chat.Enabled {
		mode = "🟢 ON"
		toggleLabel = "🔴 Disable"
	}
	state := "🟢 waiting"
	if chat.QuietActive {
		state = "🔴 active (recording)"
	}

	text := fmt.Sprintf(`⚙️ <b>Chat settings</b>

🆔 Id: <code>%d</code>
🌙 Quiet hours: %s
⏰ Window: %s – %s
📊 Now: %s
📝 Notification: %s`,
		chat.ChatID, mode, chat.StartTime, chat.EndTime, state, chat.NotifyText)

	markup := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: toggleLabel, CallbackData: fmt.Sprintf("toggle_%d", target)}},
		{{Text: "⏰ Change start time", CallbackData: fmt.Sprintf("edit_start_%d", target)}},
		{{Text: "⏰ Change end time", CallbackData: fmt.Sprintf("edit_end_%d", target)}},
		{{Text: "📝 Change notification", CallbackData: fmt.Sprintf("edit_text_%d", target)}},
		{{Text: btnMainMenu, CallbackData: "main_menu"}},
	}}
	i.sendMarkup(ctx, replyTo, text, markup)
}

func (i *Ingestor) sendHelp(ctx context.Context, chatID int64) {
	text := `❓ <b>How nightwatch works</b>

• Messages sent during quiet hours stay visible and are recorded
• When the window ends, everything recorded is deleted in one pass
• A report with the removed count is posted to the chat

<b>Group commands:</b>
/id - Show the chat id
/status - Quiet-hours status
/force_cleanup - Close the session now (admins)

<b>Setup:</b>
1. Add the bot to the group as an administrator
2. Grant it the delete-messages permission
3. Configure the window here using the chat id`
	markup := telegram.ReplyKeyboard([]string{btnMainMenu}, 1)
	i.sendMarkup(ctx, chatID, text, markup)
}

func (i *Ingestor) sendMarkup(ctx context.Context, chatID int64, text string, markup any) {
	if err := i.client.SendMessageMarkup(ctx, chatID, text, markup); err != nil {
		i.logger.Warn().Err(err).Int64("chat", chatID).Msg("send failed")
	}
}
