package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

const slaRuleCachePrefix = "sla_rule"

// cachedSLARuleRepository is a read-through Redis cache over another rule
// store. Cache failures are logged and never surface to callers.
type cachedSLARuleRepository struct {
	next   SLARuleRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

type cachedSLARule struct {
	ID                   string                `json:"id"`
	OrganizationID       string                `json:"organization_id"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// NewCachedSLARuleRepository wraps next with a Redis cache. A nil client
// returns next unchanged.
func NewCachedSLARuleRepository(next SLARuleRepository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) SLARuleRepository {
	if client == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedSLARuleRepository{next: next, client: client, ttl: ttl, logger: logger}
}

// slaRuleCacheKey hash-tags the rule identity so the entry and its version
// key share a cluster slot.
func slaRuleCacheKey(organizationID string, priority domain.TicketPriority) string {
	return fmt.Sprintf("%s:{%s:%s}", slaRuleCachePrefix, organizationID, priority)
}

// slaRuleVersionKey counts writes to a rule key. A fill only lands while the
// count still matches the one read before the store lookup.
func slaRuleVersionKey(key string) string {
	return key + ":version"
}

var errStaleFill = errors.New("sla rule changed during cache fill")

func (r *cachedSLARuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	if err := r.next.Create(ctx, rule); err != nil {
		return err
	}
	r.invalidate(ctx, rule.OrganizationID, rule.Priority)
	return nil
}

func (r *cachedSLARuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	previous, err := r.next.GetByID(ctx, rule.ID)
	if err != nil {
		return err
	}
	if err := r.next.Update(ctx, rule); err != nil {
		return err
	}
	r.invalidate(ctx, previous.OrganizationID, previous.Priority)
	r.invalidate(ctx, rule.OrganizationID, rule.Priority)
	return nil
}

func (r *cachedSLARuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	return r.next.GetByID(ctx, id)
}

func (r *cachedSLARuleRepository) FindByOrgAndPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error) {
	key := slaRuleCacheKey(organizationID, priority)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedSLARule
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			rule := domain.SLARule(cached)
			return &rule, nil
		}
		r.logger.Warn("discarding corrupt sla rule cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("sla rule cache read failed", zap.String("key", key), zap.Error(err))
		return r.next.FindByOrgAndPriority(ctx, organizationID, priority)
	}

	version, versionErr := r.version(ctx, key)
	rule, err := r.next.FindByOrgAndPriority(ctx, organizationID, priority)
	if err != nil {
		return nil, err
	}
	if versionErr != nil {
		r.logger.Warn("sla rule cache version read failed", zap.String("key", key), zap.Error(versionErr))
		return rule, nil
	}
	r.fill(ctx, key, version, rule)
	return rule, nil
}

func (r *cachedSLARuleRepository) version(ctx context.Context, key string) (int64, error) {
	version, err := r.client.Get(ctx, slaRuleVersionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// fill caches rule unless a write bumped the key's version since it was read.
func (r *cachedSLARuleRepository) fill(ctx context.Context, key string, version int64, rule *domain.SLARule) {
	payload, err := json.Marshal(cachedSLARule(*rule))
	if err != nil {
		return
	}
	versionKey := slaRuleVersionKey(key)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("skipping stale sla rule cache fill", zap.String("key", key))
	default:
		r.logger.Warn("sla rule cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *cachedSLARuleRepository) ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error) {
	return r.next.ListByOrganization(ctx, organizationID)
}

func (r *cachedSLARuleRepository) Delete(ctx context.Context, id string) error {
	previous, err := r.next.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, previous.OrganizationID, previous.Priority)
	return nil
}

// invalidate bumps the key's version before dropping the entry, so a fill
// that read the store ahead of this write cannot land afterwards.
func (r *cachedSLARuleRepository) invalidate(ctx context.Context, organizationID string, priority domain.TicketPriority) {
	key := slaRuleCacheKey(organizationID, priority)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, slaRuleVersionKey(key))
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		r.logger.Warn("sla rule cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
