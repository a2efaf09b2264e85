package repos

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/primestride/atlas-backend/internal/data/repos/knowledge"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type OrganizationRepo = knowledge.OrganizationRepo
type DocumentRepo = knowledge.DocumentRepo
type EmbeddingRepo = knowledge.EmbeddingRepo
type ClusterNameRepo = knowledge.ClusterNameRepo
type RefreshLogRepo = knowledge.RefreshLogRepo

type AccessFilter = knowledge.AccessFilter

var (
	ErrNotFound = knowledge.ErrNotFound
	ErrConflict = knowledge.ErrConflict
)

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return knowledge.NewOrganizationRepo(db, baseLog)
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return knowledge.NewDocumentRepo(db, baseLog)
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return knowledge.NewEmbeddingRepo(db, baseLog)
}

func NewClusterNameRepo(db *gorm.DB, baseLog *logger.Logger) ClusterNameRepo {
	return knowledge.NewClusterNameRepo(db, baseLog)
}

// NewCachedClusterNameRepo layers a Redis read-through cache over the
// database repo. rdb may be nil.
func NewCachedClusterNameRepo(db *gorm.DB, rdb goredis.Cmdable, ttl time.Duration, baseLog *logger.Logger) ClusterNameRepo {
	return knowledge.NewCachedClusterNameRepo(knowledge.NewClusterNameRepo(db, baseLog), rdb, ttl, baseLog)
}

func NewRefreshLogRepo(db *gorm.DB, baseLog *logger.Logger) RefreshLogRepo {
	return knowledge.NewRefreshLogRepo(db, baseLog)
}
