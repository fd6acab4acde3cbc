package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docqa-service/internal/model"
)

// RedisCache shares extracted text between service instances. Redis expires
// keys on its own, so lookups never see stale text.
type RedisCache struct {
	client    *redisv9.Client
	keyPrefix string
	now       func() time.Time
}

func NewRedisCache(client *redisv9.Client, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "docqa:text:"
	}
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Get treats a value that does not decode as a miss.
func (c *RedisCache) Get(ctx context.Context, documentID string) (model.ExtractedText, bool) {
	raw, err := c.client.Get(ctx, c.textKey(documentID)).Bytes()
	if err == redisv9.Nil {
		return model.ExtractedText{}, false
	}
	if err != nil {
		log.Printf("cache: redis get failed: %v", err)
		return model.ExtractedText{}, false
	}
	var text model.ExtractedText
	if err := json.Unmarshal(raw, &text); err != nil {
		log.Printf("cache: discarding undecodable entry: %v", err)
		return model.ExtractedText{}, false
	}
	return text, true
}

func (c *RedisCache) Set(ctx context.Context, documentID string, text model.ExtractedText) {
	ttl := TTLFor(documentID, c.now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(text)
	if err != nil {
		log.Printf("cache: encode entry failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.textKey(documentID), raw, ttl).Err(); err != nil {
		log.Printf("cache: redis set failed: %v", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, documentID string) {
	if err := c.client.Del(ctx, c.textKey(documentID)).Err(); err != nil {
		log.Printf("cache: redis delete failed: %v", err)
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (c *RedisCache) Close() error {
	return nil
}

// Signed URLs can exceed Redis' comfortable key length, so keys use a digest.
func (c *RedisCache) textKey(documentID string) string {
	sum := sha256.Sum256([]byte(documentID))
	return c.keyPrefix + hex.EncodeToString(sum[:])
}
