package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// Event subjects, published under the configured prefix.
const (
	SubjectOrderCommitted     = "order.committed"
	SubjectOrderRevealed      = "order.revealed"
	SubjectOrderCancelled     = "order.cancelled"
	SubjectMatchExecuted      = "match.executed"
	SubjectEpochCompleted     = "epoch.completed"
	SubjectChannelOpened      = "channel.opened"
	SubjectChannelUpdated     = "channel.updated"
	SubjectChannelClosed      = "channel.closed"
	SubjectEmergencyRequested = "channel.emergency.requested"
	SubjectEmergencyExecuted  = "channel.emergency.executed"
	SubjectSettlementFailed   = "settlement.failed"
)

// Publisher publishes exchange events to NATS. A nil Publisher is valid and
// drops everything, so services can run without a broker in development.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg *config.NATSConfig) (*Publisher, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ NATS publisher connected: %s", cfg.URL)

	return &Publisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// Publish serializes the payload as JSON and publishes it fire-and-forget.
func (p *Publisher) Publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	full := p.prefix + "." + subject
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ Failed to marshal event %s: %v", full, err)
		metrics.NATSPublishFailures.WithLabelValues(subject).Inc()
		return
	}

	if err := p.conn.Publish(full, data); err != nil {
		log.Printf("❌ Failed to publish event %s: %v", full, err)
		metrics.NATSPublishFailures.WithLabelValues(subject).Inc()
		return
	}
	metrics.NATSEventsPublished.WithLabelValues(subject).Inc()
}

// Close flushes and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		log.Printf("⚠️ NATS flush on close failed: %v", err)
	}
	p.conn.Close()
	metrics.NATSConnectionStatus.Set(0)
}
