package injector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ashspire/songbot/internal/credential"
)

// RedisBrokerConfig configures the optional cross-replica credential
// rotation bridge. A process without Addr set runs with in-memory injector
// slots only, which is sufficient for a single-replica deployment.
type RedisBrokerConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel prefix for rotation announcements. Defaults to "songbot:credential".
	ChannelPrefix string
	Logger        *slog.Logger
}

// RedisBroker fans out credential rotation events across replicas of the
// same process so every replica's injector slot converges on the token the
// credential supervisor most recently published, regardless of which
// replica's supervisor performed the refresh.
type RedisBroker struct {
	client  *redis.Client
	prefix  string
	replica string
	logger  *slog.Logger
}

// NewRedisBroker dials addr and returns a broker. It does not verify
// connectivity; callers that want a fail-fast startup should call Ping.
func NewRedisBroker(cfg RedisBrokerConfig) (*RedisBroker, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("injector: redis broker requires an address")
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = "songbot:credential"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBroker{
		client:  client,
		prefix:  prefix,
		replica: uuid.NewString(),
		logger:  logger,
	}, nil
}

// Ping verifies the Redis connection is reachable.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) channel(provider string) string {
	return b.prefix + ":" + provider
}

type rotationMessage struct {
	Replica string           `json:"replica"`
	Present bool             `json:"present"`
	Token   credential.Token `json:"token,omitempty"`
}

// PublishRotation announces that provider's token was just replaced (or
// cleared, when present is false) so every other replica's Bridge picks up
// the change without waiting on its own supervisor's refresh cycle.
func (b *RedisBroker) PublishRotation(ctx context.Context, provider string, tok credential.Token, present bool) error {
	payload, err := json.Marshal(rotationMessage{Replica: b.replica, Present: present, Token: tok})
	if err != nil {
		return fmt.Errorf("injector: marshal rotation: %w", err)
	}
	return b.client.Publish(ctx, b.channel(provider), payload).Err()
}

// Bridge subscribes to provider's rotation channel and applies every update
// originating from another replica to the local injector slot at key. It
// ignores announcements carrying this broker's own replica id, since the
// local supervisor already applied those directly. Bridge blocks until ctx
// is cancelled or the subscription fails.
func Bridge(ctx context.Context, b *RedisBroker, provider string, inj *Injector, key Key[credential.Token]) error {
	sub := b.client.Subscribe(ctx, b.channel(provider))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("injector: subscribe %s: %w", provider, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rot rotationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rot); err != nil {
				b.logger.Warn("discarding malformed rotation message", "provider", provider, "error", err)
				continue
			}
			if rot.Replica == b.replica {
				continue
			}
			if rot.Present {
				Update(inj, key, rot.Token)
			} else {
				Clear(inj, key)
			}
		}
	}
}

// BridgeWithRetry runs Bridge in a loop, reconnecting with a fixed backoff
// if the subscription drops (e.g. a Redis restart). It returns only when
// ctx is cancelled.
func BridgeWithRetry(ctx context.Context, b *RedisBroker, provider string, inj *Injector, key Key[credential.Token], backoff time.Duration) {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := Bridge(ctx, b, provider, inj, key); err != nil {
			b.logger.Warn("credential rotation bridge disconnected, retrying", "provider", provider, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
