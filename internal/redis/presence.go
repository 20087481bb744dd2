package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/mossy-p/call-signaling/config"
	"github.com/redis/go-redis/v9"
)

// onlineKey is the set of user ids with a live socket.
const onlineKey = "presence:online"

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Presence mirrors connected users into a Redis set so other tooling can see
// who is online.
type Presence struct {
	client *redis.Client
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

func (p *Presence) MarkOnline(ctx context.Context, userID string) error {
	return p.client.SAdd(ctx, onlineKey, userID).Err()
}

func (p *Presence) MarkOffline(ctx context.Context, userID string) error {
	return p.client.SRem(ctx, onlineKey, userID).Err()
}

// Online returns the online user ids in sorted order.
func (p *Presence) Online(ctx context.Context) ([]string, error) {
	ids, err := p.client.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Reset clears the set. Called at startup since this process owns every
// entry and none of them survive a restart.
func (p *Presence) Reset(ctx context.Context) error {
	return p.client.Del(ctx, onlineKey).Err()
}

func (p *Presence) Close() error {
	return p.client.Close()
}
