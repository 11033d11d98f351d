// Package controller drives the quiet-hours session lifecycle. A background
// tick loop compares wall-clock time-of-day against each enabled chat's
// window and opens or closes sessions at the boundaries.
//
// The trigger is time-of-day string equality, not elapsed duration. That
// keeps the loop restart-tolerant: a fresh process recovers the correct state
// purely from the durable ledger. The cost is that a boundary minute missed
// while the process was down stays missed until the next day's matching
// minute; the loop tolerates that and waits.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/metrics"
	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
	"github.com/nightwatch-dev/nightwatch/internal/purge"
	"github.com/nightwatch-dev/nightwatch/internal/store"
)

// Notifier sends best-effort chat notifications.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Purger bulk-deletes a session's captured messages.
type Purger interface {
	Purge(ctx context.Context, sess *store.Session) (purge.Report, error)
}

// Config configures the controller.
type Config struct {
	// TickInterval is how often the loop scans enabled chats. 60s matches
	// the minute resolution of window boundaries.
	TickInterval time.Duration
}

// Controller is the session lifecycle scheduler.
type Controller struct {
	cfg      Config
	store    *store.Store
	notifier Notifier
	purger   Purger
	metrics  *metrics.Metrics
	clock    func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool

	chatMu    sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the time source (for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// New creates a Controller.
func New(cfg Config, st *store.Store, notifier Notifier, purger Purger, m *metrics.Metrics, logger zerolog.Logger, opts ...Option) *Controller {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Minute
	}
	c := &Controller{
		cfg:       cfg,
		store:     st,
		notifier:  notifier,
		purger:    purger,
		metrics:   m,
		clock:     time.Now,
		logger:    logger.With().Str("component", "controller").Logger(),
		chatLocks: make(map[int64]*sync.Mutex),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the tick loop in a background goroutine. It returns
// immediately; cancel ctx to stop the loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("controller: already running")
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info().Dur("interval", c.cfg.TickInterval).Msg("controller starting")
	go c.run(ctx)
	return nil
}

// IsRunning reports whether the loop is active.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.logger.Info().Msg("controller stopped")
	}()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	// One immediate tick so a restarted process resumes from durable state
	// without waiting out a full interval.
	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick scans all enabled chats once and applies any due transitions. Each
// chat is evaluated in its own goroutine so one chat's slow remote work does
// not block the others; transitions stay serialized per chat.
func (c *Controller) Tick(ctx context.Context) {
	chats, err := c.store.ListEnabledChats()
	if err != nil {
		c.metrics.RecordTickError("list")
		c.logger.Error().Err(err).Msg("failed to list enabled chats")
		return
	}

	now := c.clock()

	var wg sync.WaitGroup
	for _, chat := range chats {
		chat := chat
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.evaluate(ctx, chat, now)
		}()
	}
	wg.Wait()

	if open, err := c.store.CountOpenSessions(); err == nil {
		c.metrics.ActiveSessions.Set(float64(open))
	}
}

// evaluate applies the transition rules for one chat at one instant.
func (c *Controller) evaluate(ctx context.Context, chat store.ChatConfig, now time.Time) {
	lock := c.lockFor(chat.ChatID)
	lock.Lock()
	defer lock.Unlock()

	nowHM := now.Format("15:04")

	switch nowHM {
	case chat.StartTime:
		c.open(ctx, chat, now)
	case chat.EndTime:
		c.close(ctx, chat)
	default:
		c.checkOverdue(chat, now)
	}
}

// open performs WAITING → ACTIVE. The session opens regardless of whether
// the notification can be delivered.
func (c *Controller) open(ctx context.Context, chat store.ChatConfig, now time.Time) {
	sessionID := SessionID(chat.ChatID, now)

	sess, err := c.store.OpenSession(chat.ChatID, sessionID, chat.EndTime)
	if errors.Is(err, nighterrors.ErrAlreadyOpen) {
		c.logger.Debug().Int64("chat", chat.ChatID).Msg("session already open")
		return
	}
	if err != nil {
		c.metrics.RecordTickError("open")
		c.logger.Error().Err(err).Int64("chat", chat.ChatID).Msg("failed to open session")
		return
	}
	c.metrics.SessionsOpened.Inc()

	if err := c.notifier.SendMessage(ctx, chat.ChatID, chat.NotifyText); err != nil {
		// Best-effort: never retried, never blocks the transition.
		c.logger.Warn().Err(err).Int64("chat", chat.ChatID).Msg("open notification failed")
	} else if err := c.store.MarkNotified(chat.ChatID, now.Format("2006-01-02")); err != nil {
		c.logger.Warn().Err(err).Int64("chat", chat.ChatID).Msg("failed to record notification day")
	}

	c.logger.Info().
		Int64("chat", chat.ChatID).
		Str("session", sess.SessionID).
		Str("closes_at", sess.ScheduledClose).
		Msg("quiet hours opened")
}

// close performs ACTIVE → WAITING: purge, then mark closed, then report.
func (c *Controller) close(ctx context.Context, chat store.ChatConfig) {
	sess, err := c.store.CurrentOpenSession(chat.ChatID)
	if err != nil {
		c.metrics.RecordTickError("close")
		c.logger.Error().Err(err).Int64("chat", chat.ChatID).Msg("failed to read open session")
		return
	}
	if sess == nil {
		// Duplicate close or never opened: nothing to do.
		c.logger.Debug().Int64("chat", chat.ChatID).Msg("no open session at close boundary")
		return
	}

	report, err := c.purger.Purge(ctx, sess)
	if err != nil {
		// Leave the session open; the loop stays alive and the overdue
		// check will surface a session that never closes.
		c.metrics.RecordTickError("purge")
		c.logger.Error().Err(err).Str("session", sess.SessionID).Msg("purge failed")
		return
	}

	err = c.store.CloseSession(sess.SessionID, report.Attempted)
	if err != nil && !errors.Is(err, nighterrors.ErrAlreadyClosed) {
		c.metrics.RecordTickError("close")
		c.logger.Error().Err(err).Str("session", sess.SessionID).Msg("failed to close session")
		return
	}
	c.metrics.SessionsClosed.Inc()

	text := fmt.Sprintf(
		"☀️ <b>Quiet hours ended</b>\n\nDeleted messages: %d\nWindow: %s – %s",
		report.Deleted, chat.StartTime, chat.EndTime,
	)
	if err := c.notifier.SendMessage(ctx, chat.ChatID, text); err != nil {
		c.logger.Warn().Err(err).Int64("chat", chat.ChatID).Msg("close report failed")
	}

	c.logger.Info().
		Int64("chat", chat.ChatID).
		Str("session", sess.SessionID).
		Int("attempted", report.Attempted).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Msg("quiet hours closed")
}

// checkOverdue logs when a session has been open for over a day, the visible
// symptom of a close boundary missed while the process was down. No catch-up
// is attempted; the session closes at the next matching minute.
func (c *Controller) checkOverdue(chat store.ChatConfig, now time.Time) {
	if !chat.QuietActive {
		return
	}
	sess, err := c.store.CurrentOpenSession(chat.ChatID)
	if err != nil || sess == nil {
		return
	}
	if now.UnixMilli()-sess.OpenedAt > (24 * time.Hour).Milliseconds() {
		c.logger.Debug().
			Int64("chat", chat.ChatID).
			Str("session", sess.SessionID).
			Msg("session open for over a day; close boundary likely missed")
	}
}

// ActiveSession is the read side for the ingestion path: the chat's open
// session, or nil when the chat is not in quiet hours.
func (c *Controller) ActiveSession(chatID int64) (*store.Session, error) {
	return c.store.CurrentOpenSession(chatID)
}

// ForceClose closes a chat's open session immediately, outside the window
// boundary. Used by the admin command.
func (c *Controller) ForceClose(ctx context.Context, chatID int64) error {
	chat, err := c.store.GetChat(chatID)
	if err != nil {
		return err
	}

	lock := c.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	c.close(ctx, *chat)
	return nil
}

func (c *Controller) lockFor(chatID int64) *sync.Mutex {
	c.chatMu.Lock()
	defer c.chatMu.Unlock()
	l, ok := c.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		c.chatLocks[chatID] = l
	}
	return l
}

// SessionID derives a stable session identity from the chat and open time.
// Chat id plus minute timestamp stays unique across process restarts.
func SessionID(chatID int64, openedAt time.Time) string {
	return fmt.Sprintf("%d_%s", chatID, openedAt.Format("20060102_1504"))
}
