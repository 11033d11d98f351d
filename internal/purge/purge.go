// Package purge bulk-deletes the messages captured during a quiet-hours
// session and reports aggregate counts. Deletions are single-attempt and
// best-effort: the remote side may already have removed a message, which is
// counted as failed without being treated as a defect.
package purge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/metrics"
	"github.com/nightwatch-dev/nightwatch/internal/store"
)

// Deleter abstracts the remote message-deletion call.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// RetentionStore abstracts the captured-message store.
type RetentionStore interface {
	MessagesForSession(sessionID string) ([]store.CapturedMessage, error)
	DeleteMessagesForSession(sessionID string) error
}

// Report aggregates the outcome of a purge.
type Report struct {
	Attempted int
	Deleted   int
	Failed    int
}

// Executor runs purges.
type Executor struct {
	store   RetentionStore
	deleter Deleter
	spacing time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewExecutor creates a purge executor. spacing is the inter-call delay that
// keeps the deletion loop under remote rate limits.
func NewExecutor(st RetentionStore, deleter Deleter, spacing time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Executor {
	return &Executor{
		store:   st,
		deleter: deleter,
		spacing: spacing,
		metrics: m,
		logger:  logger.With().Str("component", "purge").Logger(),
	}
}

// Purge deletes every retained message for the session, one attempt each,
// then drops the retention rows and returns the aggregate report. A session
// with no retained messages yields a zero report.
func (e *Executor) Purge(ctx context.Context, sess *store.Session) (Report, error) {
	msgs, err := e.store.MessagesForSession(sess.SessionID)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Attempted++
		if err := e.deleter.DeleteMessage(ctx, m.ChatID, m.MessageID); err != nil {
			report.Failed++
			e.metrics.RecordDeletion("failed")
			e.logger.Warn().Err(err).
				Str("session", sess.SessionID).
				Int64("message_id", m.MessageID).
				Msg("delete failed")
		} else {
			report.Deleted++
			e.metrics.RecordDeletion("deleted")
		}

		if e.spacing > 0 && i < len(msgs)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(e.spacing):
			}
		}
	}

	if err := e.store.DeleteMessagesForSession(sess.SessionID); err != nil {
		e.logger.Error().Err(err).Str("session", sess.SessionID).Msg("failed to drop retention rows")
	}

	e.logger.Info().
		Str("session", sess.SessionID).
		Int("attempted", report.Attempted).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Msg("purge complete")
	return report, nil
}
