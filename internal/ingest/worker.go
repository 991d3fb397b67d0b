// Package ingest drains the game-store queue and keeps persisted games
// fresh. Processing is idempotent at the message level: every
// persistence operation is an upsert, so redelivered messages converge
// to the same end state.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/gamestore"
	"github.com/dkarlsen/gamepulse/internal/models"
	"github.com/dkarlsen/gamepulse/internal/observability"
	"github.com/dkarlsen/gamepulse/internal/queue"
)

// Fetcher fetches canonical game records from the upstream provider.
type Fetcher interface {
	GamesByID(ctx context.Context, accessToken string, ids []int64) ([]models.GameRecord, error)
}

// Config holds worker tuning. Zero values take production defaults.
type Config struct {
	BatchSize  int           // messages per ProcessBatch invocation (default 30)
	StaleAfter time.Duration // age at which a persisted game is refreshed (default 30d)
	StaleLimit int           // games per refresh sweep (default 100)
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 30
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * 24 * time.Hour
	}
	if c.StaleLimit <= 0 {
		c.StaleLimit = 100
	}
	return c
}

// BatchResult reports one ProcessBatch invocation.
type BatchResult struct {
	Processed int // messages persisted and archived
	Remaining int // dequeued messages left for redelivery
}

// Worker processes queued game records and runs the staleness sweep.
type Worker struct {
	queue   queue.Queue
	store   gamestore.Store
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(q queue.Queue, store gamestore.Store, fetcher Fetcher, cfg Config, logger *zap.Logger) *Worker {
	return &Worker{
		queue:   q,
		store:   store,
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessBatch leases one batch of messages, persists every payload that
// parses, and archives exactly those messages whose main row was
// written. Parse failures and main-row failures leave the message in the
// queue for redelivery; relation-level failures are logged by the store
// and do not block archiving. A failed queue read aborts the batch with
// no partial state.
func (w *Worker) ProcessBatch(ctx context.Context) (BatchResult, error) {
	msgs, err := w.queue.Dequeue(ctx, w.cfg.BatchSize)
	if err != nil {
		observability.QueueBatchesTotal.WithLabelValues("read_error").Inc()
		return BatchResult{}, fmt.Errorf("dequeue batch: %w", err)
	}
	if len(msgs) == 0 {
		observability.QueueBatchesTotal.WithLabelValues("empty").Inc()
		return BatchResult{}, nil
	}

	type parsed struct {
		msg    queue.Message
		record models.GameRecord
	}
	batch := make([]parsed, 0, len(msgs))
	for _, msg := range msgs {
		record, err := models.ParseGameRecord(msg.Data)
		if err != nil {
			// Leave the message un-archived; the queue's own redelivery
			// and MaxDeliver policy decide its fate.
			observability.QueueMessagesTotal.WithLabelValues("parse_error").Inc()
			w.logger.Warn("skipping malformed queue message",
				zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		batch = append(batch, parsed{msg: msg, record: record})
	}

	result := BatchResult{Remaining: len(msgs)}
	for _, p := range batch {
		if err := w.store.UpsertGame(ctx, p.record); err != nil {
			observability.QueueMessagesTotal.WithLabelValues("persist_error").Inc()
			w.logger.Error("game upsert failed, message left for redelivery",
				zap.String("message_id", p.msg.ID),
				zap.Int64("game_id", p.record.ID),
				zap.Error(err))
			continue
		}
		if err := w.queue.Archive(ctx, p.msg); err != nil {
			// The record is persisted; redelivery will hit the same
			// upserts and converge.
			observability.QueueMessagesTotal.WithLabelValues("archive_error").Inc()
			w.logger.Warn("archive failed after persist",
				zap.String("message_id", p.msg.ID), zap.Error(err))
			continue
		}
		observability.QueueMessagesTotal.WithLabelValues("archived").Inc()
		result.Processed++
	}
	result.Remaining -= result.Processed

	observability.QueueBatchesTotal.WithLabelValues("ok").Inc()
	w.logger.Info("batch processed",
		zap.Int("processed", result.Processed),
		zap.Int("remaining", result.Remaining))
	return result, nil
}

// RefreshStale re-fetches up to StaleLimit games not updated within
// StaleAfter from the upstream provider in one id-list call and upserts
// the refreshed records. Returns the ids that were updated.
func (w *Worker) RefreshStale(ctx context.Context, accessToken string) ([]int64, error) {
	cutoff := w.now().Add(-w.cfg.StaleAfter)
	ids, err := w.store.StaleGameIDs(ctx, cutoff, w.cfg.StaleLimit)
	if err != nil {
		observability.StaleRefreshTotal.WithLabelValues("select_error").Inc()
		return nil, fmt.Errorf("select stale games: %w", err)
	}
	if len(ids) == 0 {
		observability.StaleRefreshTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	records, err := w.fetcher.GamesByID(ctx, accessToken, ids)
	if err != nil {
		observability.StaleRefreshTotal.WithLabelValues("fetch_error").Inc()
		return nil, fmt.Errorf("fetch %d stale games: %w", len(ids), err)
	}

	updated := make([]int64, 0, len(records))
	for _, record := range records {
		if err := w.store.UpsertGame(ctx, record); err != nil {
			w.logger.Error("stale game refresh upsert failed",
				zap.Int64("game_id", record.ID), zap.Error(err))
			continue
		}
		updated = append(updated, record.ID)
	}

	observability.StaleRefreshTotal.WithLabelValues("ok").Inc()
	w.logger.Info("stale games refreshed",
		zap.Int("selected", len(ids)), zap.Int("updated", len(updated)))
	return updated, nil
}

// RunPeriodic runs RefreshStale at the given interval until ctx is done,
// obtaining a token from tokenSource before each sweep.
func (w *Worker) RunPeriodic(ctx context.Context, interval time.Duration, tokenSource func(context.Context) (string, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tok, err := tokenSource(ctx)
			if err != nil {
				w.logger.Warn("periodic refresh skipped: no token", zap.Error(err))
				continue
			}
			if _, err := w.RefreshStale(ctx, tok); err != nil {
				w.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}
