package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cleanpay/internal/logging"
	"cleanpay/internal/orchestrator"
	"cleanpay/internal/redis"
)

const redisKeyPrefix = "cleanpay:session:"

// RedisStore keeps live sessions in process and writes every committed
// transition through to redis, so a session survives a restart or lands on
// another instance. Requests for one session are expected to stick to one
// instance while a remote call is outstanding.
type RedisStore struct {
	local  *MemoryStore
	client *redis.Client
	sealer *Sealer
	ttl    time.Duration
	deps   orchestrator.Deps
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, sealer *Sealer, deps orchestrator.Deps, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if sealer == nil {
		return nil, errors.New("session sealer required")
	}
	r := &RedisStore{
		client: client,
		sealer: sealer,
		ttl:    ttl,
		logger: logging.OrNop(logger),
	}
	r.deps = deps.WithObserver(r)
	r.local = NewMemoryStore(r.deps, ttl, logger)
	return r, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisStore) Create(ctx context.Context) (*orchestrator.Session, error) {
	s, err := r.local.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.save(ctx, s.Snapshot()); err != nil {
		_ = r.local.Delete(ctx, s.ID())
		return nil, err
	}
	return s, nil
}

// Get prefers the in-process session and falls back to the stored snapshot.
func (r *RedisStore) Get(ctx context.Context, id string) (*orchestrator.Session, error) {
	if s, ok := r.local.lookup(id); ok {
		return s, nil
	}
	snap, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := orchestrator.Restore(*snap, r.deps)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if s.State() != snap.State {
		if err := r.save(ctx, s.Snapshot()); err != nil {
			r.logger.Warn("persist recovered session", zap.String("session_id", id), zap.Error(err))
		}
	}
	r.local.put(s)
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_ = r.local.Delete(ctx, id)
	if err := r.client.Del(ctx, redisKey(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Observe writes the snapshot after each transition. It runs under the
// session lock and must not fail the transition, so errors are logged.
func (r *RedisStore) Observe(ctx context.Context, t orchestrator.Transition, snap orchestrator.Snapshot) {
	if err := r.save(context.WithoutCancel(ctx), snap); err != nil {
		r.logger.Error("persist session snapshot",
			zap.String("session_id", t.SessionID),
			zap.String("event", string(t.Event)),
			zap.Error(err))
	}
}

// Run reaps the in-process layer; redis expires its keys on its own.
func (r *RedisStore) Run(ctx context.Context, interval time.Duration) {
	r.local.Run(ctx, interval)
}

func (r *RedisStore) save(ctx context.Context, snap orchestrator.Snapshot) error {
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	sealed, err := r.sealer.Seal(snap.ID, plain)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(snap.ID), sealed, r.ttl); err != nil {
		return fmt.Errorf("store session %s: %w", snap.ID, err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, id string) (*orchestrator.Snapshot, error) {
	raw, err := r.client.Get(ctx, redisKey(id))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	plain, err := r.sealer.Open(id, raw)
	if err != nil {
		r.logger.Warn("discarding unreadable session snapshot", zap.String("session_id", id), zap.Error(err))
		return nil, ErrSessionNotFound
	}
	var snap orchestrator.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &snap, nil
}
