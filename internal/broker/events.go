package appkafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Domain event types.
const (
	EventUserFollowed   = "user.followed"
	EventUserUnfollowed = "user.unfollowed"
	EventTweetPosted    = "tweet.posted"
	EventTweetDeleted   = "tweet.deleted"
	EventTweetLiked     = "tweet.liked"
	EventTweetUnliked   = "tweet.unliked"
)

// Event records one committed mutation.
type Event struct {
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id"`
	SubjectID string    `json:"subject_id"`
	LikeCount *int      `json:"like_count,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher announces committed mutations to other systems.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// HeaderEventType carries Event.Type on every message.
const HeaderEventType = "event-type"

// KafkaPublisher writes events as JSON. Messages are keyed by the subject
// (tweet or followed user), so each subject's events stay ordered.
type KafkaPublisher struct {
	Writer KafkaWriter
}

func NewKafkaPublisher(w KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.SubjectID),
		Value:   value,
		Time:    ev.At,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(ev.Type)}},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
