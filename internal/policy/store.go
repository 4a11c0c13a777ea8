package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

const (
	cacheKeyGlobal    = "assign:policy:global"
	cacheKeyEnvPrefix = "assign:policy:env:"
	cacheTTL          = 60 * time.Second
)

// Store exposes merged policy reads to the engine and validated writes to
// administration. Reads go through a Redis cache with an in-process
// fallback; neither cache is authoritative.
type Store struct {
	ops    *DBOperations
	redis  *redis.Client
	logger *zap.Logger

	mu         sync.RWMutex
	localCache map[string]cachedPolicy
}

type cachedPolicy struct {
	payload   []byte
	expiresAt time.Time
}

// NewStore creates a policy store. The redis client may be nil; the store
// then runs on the local cache alone.
func NewStore(db *sqlx.DB, rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		ops:        NewDBOperations(db),
		redis:      rdb,
		logger:     logger,
		localCache: make(map[string]cachedPolicy),
	}
}

// LoadGlobalPolicy returns the uncached global row.
func (s *Store) LoadGlobalPolicy(ctx context.Context) (GlobalPolicy, error) {
	return s.ops.LoadGlobalPolicy(ctx)
}

// LoadEnvOverlay returns the uncached overlay row for envID, nil when absent.
func (s *Store) LoadEnvOverlay(ctx context.Context, envID int64) (*EnvOverlay, error) {
	return s.ops.LoadEnvOverlay(ctx, envID)
}

// LoadMeetingTypePriority returns the global threshold row for one type.
func (s *Store) LoadMeetingTypePriority(ctx context.Context, mt domain.MeetingType) (MeetingTypePriority, error) {
	return s.ops.LoadMeetingTypePriority(ctx, mt)
}

// EffectivePolicy merges the global policy with the environment overlay.
// envID may be nil for the global scope.
func (s *Store) EffectivePolicy(ctx context.Context, envID *int64) (EffectivePolicy, error) {
	key := cacheKeyGlobal
	if envID != nil {
		key = fmt.Sprintf("%s%d", cacheKeyEnvPrefix, *envID)
	}

	if payload, ok := s.cacheGet(ctx, key); ok {
		var eff EffectivePolicy
		if err := json.Unmarshal(payload, &eff); err == nil {
			return eff, nil
		}
	}

	global, err := s.ops.LoadGlobalPolicy(ctx)
	if err != nil {
		return EffectivePolicy{}, err
	}

	var overlay *EnvOverlay
	if envID != nil {
		overlay, err = s.ops.LoadEnvOverlay(ctx, *envID)
		if err != nil {
			return EffectivePolicy{}, err
		}
	}

	eff := merge(global, overlay)
	if payload, err := json.Marshal(eff); err == nil {
		s.cacheSet(ctx, key, payload)
	}
	return eff, nil
}

// ResolveThresholds resolves the (urgent, general) day pair for a booking:
// meeting-type priority row, then the mode adjustment, then the env-specific
// override cell when present.
func (s *Store) ResolveThresholds(ctx context.Context, envID *int64, mt domain.MeetingType, mode domain.AssignmentMode) (Thresholds, error) {
	prio, err := s.ops.LoadMeetingTypePriority(ctx, mt)
	if err != nil {
		return Thresholds{}, err
	}

	t := Thresholds{
		UrgentThresholdDays:  prio.UrgentThresholdDays,
		GeneralThresholdDays: prio.GeneralThresholdDays,
	}
	t = applyModeAdjustment(t, mode)

	if envID != nil {
		override, err := s.ops.LoadModeThresholdOverride(ctx, *envID, mt, mode)
		if err != nil {
			return Thresholds{}, err
		}
		if override != nil {
			t.UrgentThresholdDays = override.UrgentThresholdDays
			t.GeneralThresholdDays = override.GeneralThresholdDays
		}
	}

	if t.UrgentThresholdDays < 1 {
		t.UrgentThresholdDays = 1
	}
	return t, nil
}

// UpdateGlobalPolicy validates, enforces parameter locks, persists and
// invalidates the cache.
func (s *Store) UpdateGlobalPolicy(ctx context.Context, updated GlobalPolicy) error {
	old, err := s.ops.LoadGlobalPolicy(ctx)
	if err != nil {
		return err
	}

	// Switching mode re-seeds locked parameters from the mode profile before
	// the lock check, so a plain mode change is always legal.
	if updated.Mode != old.Mode && updated.Mode != domain.ModeCustom {
		if d, ok := DefaultsFor(updated.Mode); ok {
			updated.WFair = d.WFair
			updated.WUrgency = d.WUrgency
			updated.WLRS = d.WLRS
			updated.DRConsecutivePenalty = d.DRConsecutivePenalty
			old = updated
		}
	}

	if err := ValidateUpdate(old, updated); err != nil {
		return err
	}
	if err := s.ops.SaveGlobalPolicy(ctx, updated); err != nil {
		return fmt.Errorf("save global policy: %w", err)
	}

	s.Invalidate(ctx)
	s.logger.Info("Global assignment policy updated",
		zap.String("mode", string(updated.Mode)),
		zap.Float64("w_fair", updated.WFair),
		zap.Float64("w_urgency", updated.WUrgency),
		zap.Float64("w_lrs", updated.WLRS),
	)
	return nil
}

// UpsertEnvOverlay validates, persists and invalidates the overlay for one env.
func (s *Store) UpsertEnvOverlay(ctx context.Context, o EnvOverlay) error {
	if err := ValidateOverlay(o); err != nil {
		return err
	}
	if err := s.ops.UpsertEnvOverlay(ctx, o); err != nil {
		return fmt.Errorf("upsert env overlay: %w", err)
	}
	s.Invalidate(ctx)
	s.logger.Info("Environment policy overlay updated", zap.Int64("environment_id", o.EnvironmentID))
	return nil
}

// Invalidate drops every cached policy view. Called on any policy write.
func (s *Store) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.localCache = make(map[string]cachedPolicy)
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	iter := s.redis.Scan(ctx, 0, cacheKeyEnvPrefix+"*", 100).Iterator()
	keys := []string{cacheKeyGlobal}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("Policy cache invalidation failed", zap.Error(err))
	}
}

func (s *Store) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.localCache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.payload, true
	}

	if s.redis == nil {
		return nil, false
	}
	payload, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	s.localCache[key] = cachedPolicy{payload: payload, expiresAt: time.Now().Add(cacheTTL)}
	s.mu.Unlock()
	return payload, true
}

func (s *Store) cacheSet(ctx context.Context, key string, payload []byte) {
	s.mu.Lock()
	s.localCache[key] = cachedPolicy{payload: payload, expiresAt: time.Now().Add(cacheTTL)}
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, key, payload, cacheTTL).Err(); err != nil {
		s.logger.Warn("Policy cache write failed", zap.Error(err))
	}
}
