package app

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/primestride/atlas-backend/internal/data/repos"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type Repos struct {
	Organization repos.OrganizationRepo
	Document     repos.DocumentRepo
	Embedding    repos.EmbeddingRepo
	ClusterName  repos.ClusterNameRepo
	RefreshLog   repos.RefreshLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, rdb *goredis.Client, cacheTTL time.Duration) Repos {
	log.Info("Wiring repos...")
	// a nil *Client inside the interface would defeat the cache's nil check
	var cache goredis.Cmdable
	if rdb != nil {
		cache = rdb
	}
	return Repos{
		Organization: repos.NewOrganizationRepo(db, log),
		Document:     repos.NewDocumentRepo(db, log),
		Embedding:    repos.NewEmbeddingRepo(db, log),
		ClusterName:  repos.NewCachedClusterNameRepo(db, cache, cacheTTL, log),
		RefreshLog:   repos.NewRefreshLogRepo(db, log),
	}
}
