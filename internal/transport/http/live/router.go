package livehttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/logger"
	"sentrix/internal/strategy"

	"github.com/gin-gonic/gin"
)

const (
	defaultLogLimit        = 100
	maxLogLimit            = 500
	defaultPredictionLimit = 50
	healthTimeout          = 10 * time.Second
)

// Router 暴露 agent 的状态查询与控制接口。
type Router struct {
	agent        AgentAPI
	breaker      BreakerControl
	strategies   StrategyCatalog
	health       HealthChecker
	predictions  PredictionSource
	history      *scoreHistory
	cycleTimeout time.Duration
}

// NewRouter 构造路由；agent 与 breaker 必填，其余可为 nil。
func NewRouter(cfg ServerConfig) (*Router, error) {
	if cfg.Agent == nil {
		return nil, errors.New("live router requires an agent")
	}
	if cfg.Breaker == nil {
		return nil, errors.New("live router requires a circuit breaker")
	}
	r := &Router{
		agent:        cfg.Agent,
		breaker:      cfg.Breaker,
		strategies:   cfg.Strategies,
		health:       cfg.Health,
		predictions:  cfg.Predictions,
		history:      newScoreHistory(cfg.HistorySize),
		cycleTimeout: cfg.CycleTimeout,
	}
	return r, nil
}

// Attach 订阅 agent 事件以积累得分历史，返回取消订阅函数。
func (r *Router) Attach() func() {
	return r.agent.Subscribe(r.history.handle)
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/breaker", r.handleBreaker)
	group.POST("/breaker/trip", r.handleBreakerTrip)
	group.POST("/breaker/reset", r.handleBreakerReset)
	group.POST("/cycle/:symbol", r.handleRunCycle)
	group.GET("/strategies", r.handleStrategies)
	group.PUT("/strategy", r.handleSetStrategy)
	group.PUT("/auto-execute", r.handleAutoExecute)
	group.GET("/log", r.handleLog)
	group.GET("/health", r.handleHealth)
	group.GET("/predictions", r.handlePredictions)
	group.GET("/scores", r.handleScores)
	group.GET("/scores/:symbol", r.handleScores)
	group.GET("/chart/:symbol", r.handleChart)
	group.GET("/events", r.handleEvents)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agent":   r.agent.State(),
		"breaker": r.breaker.State(),
	})
}

func (r *Router) handleBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, r.breaker.State())
}

func (r *Router) handleBreakerTrip(c *gin.Context) {
	var req tripRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	detail := strings.TrimSpace(req.Detail)
	if detail == "" {
		detail = "manual trip via admin api"
	}
	logger.Warnf("[http] breaker trip requested ip=%s detail=%s", c.ClientIP(), detail)
	c.JSON(http.StatusOK, r.breaker.Trip(detail))
}

func (r *Router) handleBreakerReset(c *gin.Context) {
	logger.Infof("[http] breaker reset requested ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, r.breaker.Reset())
}

func (r *Router) handleRunCycle(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	ctx := c.Request.Context()
	if r.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cycleTimeout)
		defer cancel()
	}
	res := r.agent.RunCycle(ctx, symbol)
	status := http.StatusOK
	if res.Stage == agent.StageBusy {
		status = http.StatusConflict
	}
	c.JSON(status, res)
}

func (r *Router) strategyList() []strategy.Info {
	if r.strategies == nil {
		return nil
	}
	return r.strategies.List()
}

func (r *Router) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, strategyResponse{
		Active:     r.agent.StrategyName(),
		Config:     r.agent.StrategyConfig(),
		Strategies: r.strategyList(),
	})
}

// handleSetStrategy 切换策略；params 覆盖在当前参数（同名策略）或策略默认参数之上。
func (r *Router) handleSetStrategy(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		name = r.agent.StrategyName()
	}
	var cfg *strategy.Config
	if len(req.Params) > 0 {
		base := strategy.BaseConfig()
		switch {
		case name == r.agent.StrategyName():
			base = r.agent.StrategyConfig()
		case r.strategies != nil:
			strat, err := r.strategies.Get(name)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			base = strat.DefaultConfig()
		}
		merged, err := base.WithParams(req.Params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg = &merged
	}
	if err := r.agent.SetStrategy(name, cfg); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, strategy.ErrStrategyNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[http] strategy switched to %s ip=%s", name, c.ClientIP())
	c.JSON(http.StatusOK, strategyResponse{
		Active:     r.agent.StrategyName(),
		Config:     r.agent.StrategyConfig(),
		Strategies: r.strategyList(),
	})
}

func (r *Router) handleAutoExecute(c *gin.Context) {
	var req autoExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled 字段必填"})
		return
	}
	r.agent.SetAutoExecute(*req.Enabled)
	logger.Infof("[http] auto execute set to %v ip=%s", *req.Enabled, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"auto_execute": *req.Enabled})
}

func (r *Router) handleLog(c *gin.Context) {
	limit := queryLimit(c, defaultLogLimit, maxLogLimit)
	c.JSON(http.StatusOK, gin.H{"entries": r.agent.Log(limit)})
}

func (r *Router) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok", Providers: map[string]string{}}
	if r.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		for _, name := range r.health.Names() {
			resp.Providers[name] = "ok"
		}
		for name, err := range r.health.HealthCheckAll(ctx) {
			if err == nil {
				continue
			}
			resp.Status = "degraded"
			resp.Providers[name] = err.Error()
		}
		resp.Suspended = r.health.Suspended()
		if len(resp.Suspended) > 0 {
			resp.Status = "degraded"
		}
	}
	if r.breaker.State().Triggered {
		resp.Status = "halted"
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handlePredictions(c *gin.Context) {
	if r.predictions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "预测追踪未启用"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit := queryLimit(c, defaultPredictionLimit, maxLogLimit)
	list, err := r.predictions.Recent(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": list})
}

func (r *Router) handleScores(c *gin.Context) {
	symbol := c.Param("symbol")
	if strings.TrimSpace(symbol) == "" {
		c.JSON(http.StatusOK, gin.H{"symbols": r.history.symbols()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(symbol), "points": r.history.get(symbol)})
}

func (r *Router) handleChart(c *gin.Context) {
	symbol := c.Param("symbol")
	html, err := renderScoreChart(symbol, r.history.get(symbol))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func queryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
