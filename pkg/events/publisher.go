package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/pkg/config"
)

// Event types published on the registrar topic.
const (
	TypeEnrollmentCreated = "enrollment.created"
	TypeEnrollmentDropped = "enrollment.dropped"
	TypeGradeFinalized    = "grade.finalized"
	TypeWaitlistPromoted  = "waitlist.promoted"
	TypeAuditCompleted    = "audit.completed"
	TypeTransferDecided   = "transfer.decided"
)

// Event is the envelope written to Kafka.
type Event struct {
	Type       string                 `json:"type"`
	StudentID  string                 `json:"studentId,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Publisher writes registrar domain events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher builds a publisher. Returns nil when events are disabled
// so call sites can publish unconditionally.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Publish writes one event keyed by student. A nil publisher is a no-op
// so disabled event wiring never fails registrar operations.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(evt.StudentID),
		Value: value,
		Time:  evt.OccurredAt,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.logger.Debug("event published", zap.String("type", evt.Type), zap.String("student_id", evt.StudentID))
	return nil
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
