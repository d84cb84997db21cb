package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Producer publishes learning events and award notices
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishEvent publishes a learning event for the ledger to consume
func (p *Producer) PublishEvent(ctx context.Context, event *LearningEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if err := p.conn.PublishJSON(ctx, EventQueueName, event.ID, event); err != nil {
		return fmt.Errorf("failed to publish learning event: %w", err)
	}

	slog.Info("published learning event",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", event.UserID,
	)
	return nil
}

// PublishAward publishes an award notice for notification collaborators
func (p *Producer) PublishAward(ctx context.Context, notice *AwardNotice) error {
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().UTC()
	}

	if err := p.conn.PublishJSON(ctx, AwardQueueName, notice.EventID, notice); err != nil {
		return fmt.Errorf("failed to publish award notice: %w", err)
	}

	slog.Debug("published award notice",
		"event_id", notice.EventID,
		"user_id", notice.UserID,
		"xp_gained", notice.XPGained,
		"leveled_up", notice.LeveledUp,
	)
	return nil
}
