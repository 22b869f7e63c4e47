package connector

import (
	"context"
	"sync/atomic"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// MySQL 连接器
// =============================================================================

type mysqlConnector struct {
	*core
	cfg *MySQLConfig

	client atomic.Pointer[gorm.DB]
}

// NewMySQL 创建 MySQL 连接器，基于 GORM。
//
// 拨号时执行 Ping 验证可达性，并按配置设置连接池参数。
// 服务自身的持久化（注册审计、设备测量落盘）通过 GetClient
// 拿到 *gorm.DB 使用。
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &mysqlConnector{cfg: cfg}
	cr, err := newCore(cfg.Name, cfg.Breaker, cfg.DialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *mysqlConnector) dial(ctx context.Context) error {
	db, err := gorm.Open(mysql.Open(c.cfg.DSN), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return err
	}
	c.client.Store(db)
	return nil
}

func (c *mysqlConnector) closeSession() error {
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

func (c *mysqlConnector) GetClient() *gorm.DB {
	return c.client.Load()
}
