package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/socforge/sentinel/internal/model"
)

// AlertSubject is the NATS subject emitted alerts are published on.
const AlertSubject = "sentinel.alerts"

// NATSPublisher publishes emitted alerts for downstream consumers. It
// satisfies the engine's Sink contract: Upsert publishes the alert keyed by
// its deterministic ID, so consumers can upsert idempotently on their side.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher over an existing connection.
func NewNATSPublisher(conn *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger}
}

// Upsert publishes one alert.
func (p *NATSPublisher) Upsert(_ context.Context, alert *model.Alert) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.ID)
	headers.Set("x-threat-type", string(alert.ThreatType))
	headers.Set("x-threat-level", string(alert.ThreatLevel))
	headers.Set("x-entity", alert.Entity())

	msg := &nats.Msg{
		Subject: AlertSubject,
		Data:    data,
		Header:  headers,
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Info("Published alert",
		"alert_id", alert.ID,
		"threat_type", alert.ThreatType,
		"threat_level", alert.ThreatLevel,
		"entity", alert.Entity(),
		"subject", AlertSubject)
	return nil
}
