package feed

import (
	"context"
	"encoding/json"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medtrak/internal/model"
)

// RedisFeed fans follow-up changes out through Redis pub/sub so every API
// instance sees writes made by the annotation worker.
type RedisFeed struct {
	client *redisv9.Client
	logger zerolog.Logger
}

type redisPayload struct {
	FollowUps []model.FollowUpQuestion `json:"followUps"`
}

func NewRedisFeed(client *redisv9.Client, logger zerolog.Logger) *RedisFeed {
	return &RedisFeed{client: client, logger: logger}
}

func (f *RedisFeed) Publish(ctx context.Context, recordID string, followUps []model.FollowUpQuestion) error {
	payload, err := json.Marshal(redisPayload{FollowUps: followUps})
	if err != nil {
		return fmt.Errorf("marshal follow-up update failed: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(recordID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish follow-ups failed: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, recordID string) (*Subscription, error) {
	pubsub := f.client.Subscribe(context.Background(), f.channel(recordID))
	// Wait for the subscribe confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe follow-ups failed: %w", err)
	}

	sub := newSubscription(recordID, func() { _ = pubsub.Close() })
	messages := pubsub.Channel()
	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var payload redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					f.logger.Warn().Err(err).Str("record_id", recordID).Msg("decode follow-up update failed")
					continue
				}
				sub.Offer(Update{RecordID: recordID, FollowUps: payload.FollowUps})
			}
		}
	}()
	return sub, nil
}

func (f *RedisFeed) channel(recordID string) string {
	return "records:followups:" + recordID
}
