package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// JetStreamConfig holds connection and consumer settings for the NATS
// JetStream queue backend.
type JetStreamConfig struct {
	URL           string
	Stream        string
	Subject       string
	Durable       string
	Visibility    time.Duration // AckWait: how long a leased message stays invisible
	FetchWait     time.Duration // how long Dequeue waits when the queue is empty
	MaxDeliver    int           // redelivery cap before the server stops retrying a message
	MaxReconnects int
	ReconnectWait time.Duration
}

// JetStreamQueue implements Queue on a durable JetStream pull consumer.
// The consumer's AckWait is the visibility timeout: fetched messages are
// hidden from other consumers until acked or until AckWait expires.
type JetStreamQueue struct {
	conn      *nats.Conn
	sub       *nats.Subscription
	fetchWait time.Duration
	logger    *zap.Logger
}

// NewJetStreamQueue connects to NATS, provisions the stream if missing,
// and binds a durable pull consumer.
func NewJetStreamQueue(cfg JetStreamConfig, logger *zap.Logger) (*JetStreamQueue, error) {
	if cfg.Visibility <= 0 {
		cfg.Visibility = 30 * time.Second
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 2 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("queue connection lost", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("queue reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			conn.Close()
			return nil, fmt.Errorf("stream info %s: %w", cfg.Stream, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("provision stream %s: %w", cfg.Stream, err)
		}
		logger.Info("provisioned queue stream",
			zap.String("stream", cfg.Stream), zap.String("subject", cfg.Subject))
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable,
		nats.BindStream(cfg.Stream),
		nats.AckWait(cfg.Visibility),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.AckExplicit(),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pull subscribe %s: %w", cfg.Subject, err)
	}

	return &JetStreamQueue{conn: conn, sub: sub, fetchWait: cfg.FetchWait, logger: logger}, nil
}

// Dequeue implements Queue.Dequeue. An empty queue is not an error.
func (q *JetStreamQueue) Dequeue(ctx context.Context, max int) ([]Message, error) {
	msgs, err := q.sub.Fetch(max, nats.MaxWait(q.fetchWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch from queue: %w", err)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		m := m
		out = append(out, NewMessage(messageID(m), m.Data, func() error { return m.Ack() }))
	}
	return out, nil
}

// Archive implements Queue.Archive via an explicit ack.
func (q *JetStreamQueue) Archive(ctx context.Context, m Message) error {
	if m.ack == nil {
		return fmt.Errorf("message %s was not dequeued from this queue", m.ID)
	}
	return m.ack()
}

// Healthy reports whether the underlying connection is up.
func (q *JetStreamQueue) Healthy() error {
	if !q.conn.IsConnected() {
		return fmt.Errorf("nats connection down: %s", q.conn.Status())
	}
	return nil
}

// Close drains the subscription and closes the connection.
func (q *JetStreamQueue) Close() error {
	if err := q.sub.Unsubscribe(); err != nil {
		q.logger.Warn("unsubscribe failed", zap.Error(err))
	}
	q.conn.Close()
	return nil
}

// messageID derives a stable identity from the server-assigned stream
// sequence, which survives redelivery.
func messageID(m *nats.Msg) string {
	meta, err := m.Metadata()
	if err != nil {
		return m.Subject
	}
	return strconv.FormatUint(meta.Sequence.Stream, 10)
}
