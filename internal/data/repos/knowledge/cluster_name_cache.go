package knowledge

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

const clusterNameKeyPrefix = "atlas:cluster_names:"

type cachedClusterNameRepo struct {
	inner ClusterNameRepo
	rdb   goredis.Cmdable
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedClusterNameRepo wraps inner with a Redis read-through cache. Redis
// failures are logged and fall through to inner. A nil rdb returns inner unchanged.
func NewCachedClusterNameRepo(inner ClusterNameRepo, rdb goredis.Cmdable, ttl time.Duration, baseLog *logger.Logger) ClusterNameRepo {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &cachedClusterNameRepo{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   baseLog.With("repo", "CachedClusterNameRepo"),
	}
}

func clusterNameKey(orgID uuid.UUID) string {
	return clusterNameKeyPrefix + orgID.String()
}

func (r *cachedClusterNameRepo) Upsert(dbc dbctx.Context, orgID uuid.UUID, clusterIndex int, name string) error {
	if err := r.inner.Upsert(dbc, orgID, clusterIndex, name); err != nil {
		return err
	}
	r.invalidate(dbc, orgID)
	return nil
}

func (r *cachedClusterNameRepo) DeleteExcept(dbc dbctx.Context, orgID uuid.UUID, keep []int) error {
	if err := r.inner.DeleteExcept(dbc, orgID, keep); err != nil {
		return err
	}
	r.invalidate(dbc, orgID)
	return nil
}

func (r *cachedClusterNameRepo) invalidate(dbc dbctx.Context, orgID uuid.UUID) {
	if err := r.rdb.Del(cacheCtx(dbc), clusterNameKey(orgID)).Err(); err != nil {
		r.log.Warn("cluster name cache invalidation failed", "organization_id", orgID, "error", err)
	}
}

func (r *cachedClusterNameRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) (map[int]string, error) {
	key := clusterNameKey(orgID)
	raw, err := r.rdb.HGetAll(cacheCtx(dbc), key).Result()
	switch {
	case err == nil && len(raw) > 0:
		out := make(map[int]string, len(raw))
		for k, v := range raw {
			idx, convErr := strconv.Atoi(k)
			if convErr != nil {
				continue
			}
			out[idx] = v
		}
		return out, nil
	case err != nil && !errors.Is(err, goredis.Nil):
		r.log.Warn("cluster name cache read failed", "organization_id", orgID, "error", err)
	}

	names, err := r.inner.ListByOrganization(dbc, orgID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return names, nil
	}

	fields := make(map[string]any, len(names))
	for idx, name := range names {
		fields[strconv.Itoa(idx)] = name
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(cacheCtx(dbc), key, fields)
	pipe.Expire(cacheCtx(dbc), key, r.ttl)
	if _, err := pipe.Exec(cacheCtx(dbc)); err != nil {
		r.log.Warn("cluster name cache fill failed", "organization_id", orgID, "error", err)
	}
	return names, nil
}

func cacheCtx(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}
