package geolite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "clickguard:geolite:file:"
	redisChannel   = "clickguard:geolite:updates"
	redisOpTimeout = 30 * time.Second
)

type updatePayload struct {
	Source    string   `json:"source"`
	Editions  []string `json:"editions"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// Distribution replicates downloaded databases through Redis so only the
// leader talks to MaxMind.
type Distribution struct {
	client     *redis.Client
	targets    []Target
	reloader   Reloader
	instanceID string
}

func NewDistribution(client *redis.Client, targets []Target, reloader Reloader) *Distribution {
	return &Distribution{
		client:     client,
		targets:    targets,
		reloader:   reloader,
		instanceID: uuid.NewString(),
	}
}

// Start loads whatever the leader last published and then follows updates
// until ctx is done.
func (d *Distribution) Start(ctx context.Context) {
	go func() {
		if updated, err := d.fetch(ctx, nil); err != nil {
			log.Error("geolite redis sync: initial load failed", "error", err)
		} else if updated {
			log.Info("geolite redis sync: loaded databases from redis")
		}
	}()

	go d.subscribe(ctx)
}

// Publish uploads the local files and notifies the other instances.
func (d *Distribution) Publish(ctx context.Context) error {
	editions := make([]string, 0, len(d.targets))
	for _, target := range d.targets {
		data, err := os.ReadFile(target.Path)
		if err != nil {
			return fmt.Errorf("geolite redis sync: read %s: %w", target.Edition, err)
		}
		if err := d.store(ctx, target.Edition, data); err != nil {
			return fmt.Errorf("geolite redis sync: store %s: %w", target.Edition, err)
		}
		editions = append(editions, target.Edition)
	}

	payload, err := json.Marshal(updatePayload{
		Source:    d.instanceID,
		Editions:  editions,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("geolite redis sync: serialize payload: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return d.client.Publish(opCtx, redisChannel, payload).Err()
}

func (d *Distribution) subscribe(ctx context.Context) {
	pubsub := d.client.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("geolite redis sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var payload updatePayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Error("geolite redis sync: invalid payload", "error", err)
			continue
		}
		if payload.Source == d.instanceID {
			continue
		}

		if updated, err := d.fetch(ctx, payload.Editions); err != nil {
			log.Error("geolite redis sync: failed to apply update", "error", err)
		} else if updated {
			log.Info("geolite redis sync: applied update", "editions", payload.Editions)
		}
	}
}

// fetch writes the published copies of editions (all targets when empty) and
// reloads once if anything changed.
func (d *Distribution) fetch(ctx context.Context, editions []string) (bool, error) {
	files := make(map[string][]byte)
	for _, target := range d.targets {
		if len(editions) > 0 && !slices.Contains(editions, target.Edition) {
			continue
		}
		data, err := d.load(ctx, target.Edition)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, err
		}
		files[target.Edition] = data
	}
	return applyFiles(d.targets, files, d.reloader)
}

func applyFiles(targets []Target, files map[string][]byte, reloader Reloader) (bool, error) {
	var updated bool
	for _, target := range targets {
		data := files[target.Edition]
		if len(data) == 0 {
			continue
		}
		if err := writeToFile(target.Path, bytes.NewReader(data)); err != nil {
			return false, fmt.Errorf("geolite redis sync: write %s: %w", target.Edition, err)
		}
		updated = true
	}

	if updated && reloader != nil {
		if err := reloader.Reload(); err != nil {
			return false, fmt.Errorf("geolite redis sync: reload databases: %w", err)
		}
	}
	return updated, nil
}

func (d *Distribution) store(ctx context.Context, edition string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return d.client.Set(opCtx, redisKeyPrefix+edition, data, 0).Err()
}

func (d *Distribution) load(ctx context.Context, edition string) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return d.client.Get(opCtx, redisKeyPrefix+edition).Bytes()
}
