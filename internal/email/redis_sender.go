package email

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	mailboxKeyPrefix = "mockemail:"
	mailboxSize      = 50
	mailboxTTL       = 30 * time.Minute
)

// StoredEmail is one message in a Redis mailbox.
type StoredEmail struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Raw     string    `json:"raw"`
	SentAt  time.Time `json:"sentAt"`
}

// RedisSender keeps the latest messages per recipient in Redis lists, so
// end-to-end tests can read what would have been sent.
type RedisSender struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSender creates a RedisSender.
func NewRedisSender(client *redis.Client, logger *zap.Logger) *RedisSender {
	return &RedisSender{client: client, logger: logger.Named("email_redis")}
}

// MailboxKey is the Redis list holding messages sent to address.
func MailboxKey(address string) string {
	return mailboxKeyPrefix + address
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	now := time.Now().UTC()
	for _, addr := range to {
		data, err := json.Marshal(StoredEmail{To: addr, Subject: subject, Raw: string(rawMessage), SentAt: now})
		if err != nil {
			return fmt.Errorf("failed to marshal email: %w", err)
		}
		key := MailboxKey(addr)
		pipe := s.client.TxPipeline()
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, mailboxSize-1)
		pipe.Expire(ctx, key, mailboxTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
	}
	s.logger.Debug("email stored in redis mailbox", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// Latest returns the newest message sent to address, or nil if there is none.
func (s *RedisSender) Latest(ctx context.Context, address string) (*StoredEmail, error) {
	raw, err := s.client.LIndex(ctx, MailboxKey(address), 0).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e StoredEmail
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}
