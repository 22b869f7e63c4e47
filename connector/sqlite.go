package connector

import (
	"context"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// SQLite 连接器
// =============================================================================

type sqliteConnector struct {
	*core
	cfg *SQLiteConfig

	client atomic.Pointer[gorm.DB]
}

// NewSQLite 创建 SQLite 连接器，基于 GORM。
// 默认使用内存数据库，适合测试和单机嵌入式部署。
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &sqliteConnector{cfg: cfg}
	cr, err := newCore(cfg.Name, cfg.Breaker, defaultDialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *sqliteConnector) dial(_ context.Context) error {
	db, err := gorm.Open(sqlite.Open(c.cfg.Path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return err
	}
	c.client.Store(db)
	return nil
}

func (c *sqliteConnector) closeSession() error {
	db := c.client.Swap(nil)
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *sqliteConnector) GetClient() *gorm.DB {
	return c.client.Load()
}
