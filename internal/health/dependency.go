package health

import (
	"context"
	"fmt"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DBChecker pings one gorm-backed store.
type DBChecker struct {
	name string
	db   *gorm.DB
}

func NewDBChecker(name string, db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{name: name, db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: c.name, Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		return unhealthy(res, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy(res, err)
	}
	return res
}

// SchemaChecker reports unready until both stores have been migrated.
type SchemaChecker struct {
	stores *database.Stores
}

func NewSchemaChecker(stores *database.Stores) Checker {
	if stores == nil {
		return nil
	}
	return &SchemaChecker{stores: stores}
}

func (c *SchemaChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "schema", Healthy: true}
	for _, st := range database.Status(c.stores) {
		if !st.Present {
			return unhealthy(res, fmt.Errorf("%s store is missing table %s", st.Store, st.Table))
		}
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unhealthy(res, err)
	}
	return res
}

func unhealthy(res CheckResult, err error) CheckResult {
	res.Healthy = false
	res.Error = err.Error()
	return res
}
