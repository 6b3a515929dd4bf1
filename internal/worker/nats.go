package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/metrics"
)

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL     string
	Subject string
	// Queue is the queue group shared by every service instance, so each
	// notification is recorded once.
	Queue string
	// Buffer is the capacity of the key channel.
	Buffer int
}

// Notification is the payload published when a video is stored.
type Notification struct {
	Extractor string `json:"extractor"`
	ID        string `json:"id"`
}

// NATSSource turns ingestion notifications into video keys.
type NATSSource struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	keys    chan domain.VideoKey
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewNATSSource connects to NATS and subscribes to the notification
// subject.
func NewNATSSource(cfg NATSConfig, logger *slog.Logger) (*NATSSource, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("vidshelf-ingest"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	s := newNATSSource(cfg, logger)
	s.conn = nc

	if cfg.Queue != "" {
		s.sub, err = nc.QueueSubscribe(cfg.Subject, cfg.Queue, s.handle)
	} else {
		s.sub, err = nc.Subscribe(cfg.Subject, s.handle)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}

	logger.Info("subscribed to ingestion notifications", "subject", cfg.Subject, "queue", cfg.Queue)
	return s, nil
}

func newNATSSource(cfg NATSConfig, logger *slog.Logger) *NATSSource {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &NATSSource{
		subject: cfg.Subject,
		keys:    make(chan domain.VideoKey, cfg.Buffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Keys returns the channel the pool consumes.
func (s *NATSSource) Keys() <-chan domain.VideoKey {
	return s.keys
}

// handle decodes one message. It blocks while the buffer is full, which
// leaves pending messages with the NATS client.
func (s *NATSSource) handle(msg *nats.Msg) {
	key, err := DecodeNotification(msg.Data)
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues(s.subject, "invalid").Inc()
		s.logger.Warn("dropping invalid notification", "error", err)
		return
	}

	select {
	case s.keys <- key:
		metrics.IngestMessagesTotal.WithLabelValues(s.subject, "ok").Inc()
	case <-s.done:
		metrics.IngestMessagesTotal.WithLabelValues(s.subject, "dropped").Inc()
	}
}

// Close drains the subscription and closes the connection.
func (s *NATSSource) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil {
				s.logger.Warn("failed to unsubscribe", "error", err)
			}
		}
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// DecodeNotification parses a notification payload into a video key.
func DecodeNotification(data []byte) (domain.VideoKey, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return domain.VideoKey{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Extractor == "" || n.ID == "" {
		return domain.VideoKey{}, fmt.Errorf("notification missing extractor or id")
	}
	return domain.VideoKey{Extractor: n.Extractor, ID: n.ID}, nil
}
