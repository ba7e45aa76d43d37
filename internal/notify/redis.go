package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mroshb/tiktok_claims/internal/config"
	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "tiktok_claims:"

// ClaimMessage is published once a claim reaches a terminal state.
type ClaimMessage struct {
	ClaimID            string  `json:"claimId"`
	UID                string  `json:"uid"`
	Processed          bool    `json:"processed"`
	Reason             *string `json:"reason"`
	NewBalance         *int64  `json:"newBalance,omitempty"`
	VideosWatchedToday *int    `json:"videosWatchedToday,omitempty"`
	EarningsToday      *int64  `json:"earningsToday,omitempty"`
}

// Channel returns the pub/sub channel a user's claim outcomes go to.
func Channel(uid string) string {
	return channelPrefix + uid
}

func NewMessage(outcome *models.ClaimOutcome) ClaimMessage {
	msg := ClaimMessage{
		ClaimID:   outcome.ClaimID,
		UID:       outcome.UID,
		Processed: outcome.Processed,
	}
	if outcome.Reason != "" {
		reason := outcome.Reason
		msg.Reason = &reason
	}
	if s := outcome.Snapshot; s != nil {
		msg.NewBalance = &s.NewBalance
		msg.VideosWatchedToday = &s.VideosWatchedToday
		msg.EarningsToday = &s.EarningsToday
	}
	return msg
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Connect opens and pings a redis client from the application config.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (p *RedisPublisher) ClaimSettled(ctx context.Context, outcome *models.ClaimOutcome) error {
	payload, err := json.Marshal(NewMessage(outcome))
	if err != nil {
		return fmt.Errorf("encode claim message: %w", err)
	}
	return p.client.Publish(ctx, Channel(outcome.UID), payload).Err()
}
