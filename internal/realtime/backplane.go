package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultBackplaneChannel is the Redis channel room traffic is relayed on.
const DefaultBackplaneChannel = "equimarket:realtime"

// Backplane relays room events between processes so that a user connected
// to one API instance receives events emitted on another.
type Backplane interface {
	Publish(ctx context.Context, room, exceptID string, frame []byte) error
	// Subscribe calls deliver for every event published by another process
	// until ctx is done.
	Subscribe(ctx context.Context, deliver func(room, exceptID string, frame []byte)) error
}

type relayedFrame struct {
	Node   string          `json:"node"`
	Room   string          `json:"room"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBackplane implements Backplane with Redis pub/sub.
type RedisBackplane struct {
	rdb     *redis.Client
	channel string
	node    string
	logger  *zap.Logger
}

// NewRedisBackplane creates a backplane publishing on channel.
func NewRedisBackplane(rdb *redis.Client, channel string, logger *zap.Logger) *RedisBackplane {
	if channel == "" {
		channel = DefaultBackplaneChannel
	}
	return &RedisBackplane{
		rdb:     rdb,
		channel: channel,
		node:    uuid.NewString(),
		logger:  logger.Named("backplane"),
	}
}

// Publish sends a frame to the other processes.
func (b *RedisBackplane) Publish(ctx context.Context, room, exceptID string, frame []byte) error {
	payload, err := json.Marshal(relayedFrame{Node: b.node, Room: room, Except: exceptID, Frame: frame})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe relays frames published by other nodes. Frames from this node
// were already delivered locally and are skipped.
func (b *RedisBackplane) Subscribe(ctx context.Context, deliver func(room, exceptID string, frame []byte)) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to confirm subscription to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to realtime backplane", zap.String("channel", b.channel), zap.String("node", b.node))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rf relayedFrame
			if err := json.Unmarshal([]byte(msg.Payload), &rf); err != nil {
				b.logger.Warn("discarding malformed backplane frame", zap.Error(err))
				continue
			}
			if rf.Node == b.node {
				continue
			}
			deliver(rf.Room, rf.Except, rf.Frame)
		}
	}
}
