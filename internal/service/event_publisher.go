package service

import (
	"encoding/json"
	"time"

	"engagehub/internal/model"
	"engagehub/internal/util"
)

const (
	engagementExchange   = "engagement_exchange"
	engagementRoutingKey = "engagement"
)

// Event types consumed by the notification collaborator.
const (
	EventThreadCreated = "thread.created"
	EventThreadDeleted = "thread.deleted"
	EventLiked         = "like.created"
	EventUnliked       = "like.removed"
)

// EngagementEvent is the message published for every engagement mutation.
// Delivery is fire-and-forget; consumers own retries and fan-out.
type EngagementEvent struct {
	Type       string            `json:"type"`
	Kind       model.SubjectKind `json:"kind"`
	TargetID   string            `json:"target_id"`
	ItemID     string            `json:"item_id,omitempty"`
	ActorID    string            `json:"actor_id"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type EventPublisher interface {
	PublishEngagement(event EngagementEvent) error
}

type rabbitEventPublisher struct {
	rabbitMQ *util.RabbitMQClient
}

// NewEventPublisher declares the engagement exchange and returns a publisher
// bound to it.
func NewEventPublisher(rabbitMQ *util.RabbitMQClient) (EventPublisher, error) {
	channel := rabbitMQ.GetChannel()
	if err := channel.ExchangeDeclare(
		engagementExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, err
	}
	return &rabbitEventPublisher{rabbitMQ: rabbitMQ}, nil
}

func (p *rabbitEventPublisher) PublishEngagement(event EngagementEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rabbitMQ.Publish(engagementExchange, engagementRoutingKey, body)
}
