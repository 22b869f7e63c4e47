package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 管理端 HTTP 服务
// =============================================================================

// adminServer 注册中心的运维观察面：注册表快照、按类型批量
// 注销、Prometheus 指标。只读为主，唯一的写操作是 DELETE。
type adminServer struct {
	srv    *http.Server
	logger clog.Logger
}

func newAdminServer(addr string, t *table, meter metrics.Meter, logger clog.Logger) *adminServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": t.snapshot()})
	})

	r.GET("/services/:type", func(c *gin.Context) {
		out := t.lookupAll(c.Param("type"))
		if len(out) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"services": out})
	})

	r.DELETE("/services/:type", func(c *gin.Context) {
		n := t.deregisterAll(c.Param("type"))
		c.JSON(http.StatusOK, gin.H{"removed": n})
	})

	if meter != nil {
		r.GET("/metrics", gin.WrapH(meter.Handler()))
	}

	return &adminServer{
		srv:    &http.Server{Addr: addr, Handler: r},
		logger: logger,
	}
}

func (a *adminServer) serve() {
	a.logger.Info("管理端已启动", clog.String("addr", a.srv.Addr))
	if err := a.srv.ListenAndServe(); err != nil && !xerrors.Is(err, http.ErrServerClosed) {
		a.logger.Error("管理端退出", clog.Error(err))
	}
}

func (a *adminServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(ctx)
}
