package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leaseRetryDelay      = time.Second
	leaseOpTimeout       = 5 * time.Second
	minRenewInterval     = time.Second
)

var (
	leaseCounter atomic.Uint64

	renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunWithLeader runs fn on exactly one instance at a time. With Redis
// configured the instance must hold the lease stored at key; the context
// passed to fn is cancelled when the lease is lost. Without Redis, fn runs
// locally. RunWithLeader returns when ctx is done.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, fn func(context.Context)) error {
	if fn == nil {
		return errors.New("support: leader function cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if errors.Is(err, ErrRedisNotConfigured) {
		fn(ctx)
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("support: leader lease redis client: %w", err)
	}

	for {
		lease, err := acquireLease(ctx, client, key, ttl)
		if err != nil {
			return ctx.Err()
		}

		log.Debug("leader lease acquired", "key", key)
		fn(lease.ctx)
		lease.Close()
		log.Debug("leader lease released", "key", key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaseRetryDelay):
		}
	}
}

type lease struct {
	client    *redis.Client
	key       string
	token     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	closeOnce sync.Once
}

// acquireLease blocks until the lease is held or ctx is done.
func acquireLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*lease, error) {
	token := leaseToken()

	for {
		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil && ctx.Err() == nil {
			log.Warn("leader lease: setnx failed", "key", key, "error", err)
		}
		if err == nil && ok {
			leaseCtx, cancel := context.WithCancel(ctx)
			l := &lease{
				client: client,
				key:    key,
				token:  token,
				ttl:    ttl,
				ctx:    leaseCtx,
				cancel: cancel,
				stop:   make(chan struct{}),
			}
			go l.keepAlive()
			return l, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leaseRetryDelay):
		}
	}
}

func (l *lease) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), leaseOpTimeout)
		defer cancel()
		if err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("leader lease: release failed", "key", l.key, "error", err)
		}
	})
}

func (l *lease) keepAlive() {
	interval := l.ttl / 3
	if interval < minRenewInterval {
		interval = minRenewInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.renew(); err != nil {
				log.Warn("leader lease: renewal failed", "key", l.key, "error", err)
				l.cancel()
				return
			}
		}
	}
}

func (l *lease) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), leaseOpTimeout)
	defer cancel()

	res, err := renewLeaseScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lease lost")
	}
	return nil
}

func leaseToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), leaseCounter.Add(1))
}
