package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "clickguard:config:settings"
	redisConfigChannel = "clickguard:config:updates"
	redisOpTimeout     = 5 * time.Second
)

// syncEnvelope tags a published config with the instance that sent it so an
// instance can ignore its own broadcasts.
type syncEnvelope struct {
	Origin string          `json:"origin"`
	Config json.RawMessage `json:"config"`
}

type redisSync struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	origin string
}

var settingsSync redisSync

// EnableRedisSynchronization shares settings across instances. The stored
// copy in Redis wins over the local file at startup; when Redis holds
// nothing yet, the local settings are published.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("Config synchronization disabled: redis client is nil")
		return
	}

	settingsSync.mu.Lock()
	if settingsSync.client != nil {
		settingsSync.mu.Unlock()
		return
	}
	host, _ := os.Hostname()
	settingsSync.client = client
	settingsSync.ctx = ctx
	settingsSync.origin = fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
	settingsSync.mu.Unlock()

	found, err := pullConfigFromRedis(ctx, client)
	if err != nil {
		log.Error("Config sync: failed to load configuration from redis", "error", err)
	}
	if !found {
		if payload, err := json.Marshal(GetConfig()); err == nil {
			if err := broadcastConfigUpdate(payload); err != nil {
				log.Error("Config sync: failed to publish configuration", "error", err)
			}
		}
	}

	go listenForConfigUpdates(ctx, client)
}

func pullConfigFromRedis(ctx context.Context, client *redis.Client) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, redisConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, applyRemoteConfig(payload)
}

func listenForConfigUpdates(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, redisConfigChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			log.Error("Config sync: subscription error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var env syncEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Error("Config sync: invalid envelope", "error", err)
			continue
		}

		settingsSync.mu.RLock()
		self := settingsSync.origin
		settingsSync.mu.RUnlock()
		if env.Origin == self {
			continue
		}

		if err := applyRemoteConfig(env.Config); err != nil {
			log.Error("Config sync: failed to apply remote update", "error", err)
		}
	}
}

func applyRemoteConfig(payload []byte) error {
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("config: decode remote settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: remote settings rejected: %w", err)
	}
	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

// broadcastConfigUpdate stores payload under the shared key and notifies
// other instances. It is a no-op until synchronization is enabled.
func broadcastConfigUpdate(payload []byte) error {
	settingsSync.mu.RLock()
	client, baseCtx, origin := settingsSync.client, settingsSync.ctx, settingsSync.origin
	settingsSync.mu.RUnlock()

	if client == nil || len(payload) == 0 {
		return nil
	}
	if baseCtx == nil || baseCtx.Err() != nil {
		baseCtx = context.Background()
	}

	env, err := json.Marshal(syncEnvelope{Origin: origin, Config: payload})
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(baseCtx, redisOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, redisConfigKey, payload, 0).Err(); err != nil {
		return err
	}
	return client.Publish(opCtx, redisConfigChannel, env).Err()
}
