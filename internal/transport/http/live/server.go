package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sentrix/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server 提供 /api 管理接口：状态、熔断控制、手动周期、事件流与得分图。
type Server struct {
	addr   string
	router *gin.Engine
	routes *Router
}

// ServerConfig 描述 live HTTP 服务依赖。
type ServerConfig struct {
	Addr         string
	Agent        AgentAPI
	Breaker      BreakerControl
	Strategies   StrategyCatalog
	Health       HealthChecker
	Predictions  PredictionSource
	HistorySize  int
	CycleTimeout time.Duration
}

// NewServer 构建 live HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	routes, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	routes.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router, routes: routes}, nil
}

// requestLogger 记录后台/接口的人工操作，便于追踪刷新与调用。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the gin engine, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。得分历史的订阅随服务生命周期存在。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	detach := s.routes.Attach()
	defer detach()

	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] admin api listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
