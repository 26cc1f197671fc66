package eye

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTopic is the pub/sub channel eye processes subscribe to.
const DefaultTopic = "gazecapture:eye"

// RedisConfig configures a Redis pub/sub channel.
type RedisConfig struct {
	Address  string
	Password string
	Database int
	Topic    string
	Timeout  time.Duration
}

// Redis publishes messages to eye processes running on other hosts.
type Redis struct {
	client  *redis.Client
	topic   string
	timeout time.Duration
}

// NewRedis connects to the server described by cfg. The connection is
// checked lazily on the first publish so that an absent broker never blocks
// recording.
func NewRedis(cfg RedisConfig) *Redis {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &Redis{client: client, topic: cfg.Topic, timeout: cfg.Timeout}
}

// Send publishes msg as JSON. The number of subscribers is not checked.
func (r *Redis) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode eye message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.topic, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// DecodeMessage parses a payload published by Redis.Send.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode eye message: %w", err)
	}
	return msg, nil
}
