package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const mockEmailTTL = 5 * time.Minute

// MockEmail is what RedisSender stores for each message.
type MockEmail struct {
	To         string `json:"to"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id"`
	SentAt     string `json:"sent_at"`
}

// RedisSender stores emails in Redis instead of sending them, so tests can read them back.
type RedisSender struct {
	client redis.Cmdable
	from   string
}

func NewRedisSender(client redis.Cmdable, from string) *RedisSender {
	return &RedisSender{client: client, from: from}
}

// MockEmailKey is the Redis key holding the last email of templateID sent to a recipient.
func MockEmailKey(to, templateID string) string {
	if templateID == "" {
		templateID = "unknown"
	}
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(to), templateID)
}

// Send keys the message by its first recipient and the TemplateHeader value.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}
	templateID := HeaderValue(rawMessage, TemplateHeader)

	data, err := json.Marshal(MockEmail{
		To:         strings.Join(to, ", "),
		From:       s.from,
		Subject:    subject,
		Body:       string(rawMessage),
		TemplateID: templateID,
		SentAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, templateID)
	if err := s.client.Set(ctx, key, data, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, Subject: %s)", key, mockEmailTTL, subject)
	return nil
}

// GetMockEmail reads back a stored message. It returns (nil, nil) when none exists.
func GetMockEmail(ctx context.Context, client redis.Cmdable, to, templateID string) (*MockEmail, error) {
	raw, err := client.Get(ctx, MockEmailKey(to, templateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msg MockEmail
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode mock email: %w", err)
	}
	return &msg, nil
}
