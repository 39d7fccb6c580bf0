package app

import (
	"context"
	"fmt"
	"sync"

	"sentrix/internal/agent"
	"sentrix/internal/config"
	"sentrix/internal/logger"
	"sentrix/internal/notifier"
	"sentrix/internal/risk"
	livehttp "sentrix/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动调度、推送与管理接口。
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	agent   *agent.Agent
	runner  *agent.Runner
	risk    *risk.Manager
	server  *livehttp.Server
	bridge  *notifier.Bridge
	closers []func() error

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动周期调度、推送与 HTTP 服务，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.agent == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		logger.InfoBlock(a.Summary.String())
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.bridge != nil {
		detach := a.bridge.Attach(a.agent, a.risk)
		defer detach()
		group.Go(func() error {
			a.bridge.Run(ctx)
			return nil
		})
	}

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return a.runner.Run(ctx)
	})

	return group.Wait()
}

// Close 释放存储连接，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warnf("关闭资源失败: %v", err)
		}
	}
}

// Agent exposes the orchestrator (for tests and replay harnesses).
func (a *App) Agent() *agent.Agent {
	if a == nil {
		return nil
	}
	return a.agent
}

func (a *App) Runner() *agent.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

// ApplyConfig 应用热更新的配置。只有日志级别、策略及其参数、auto_execute
// 可在运行中切换，其余字段需要重启。
func (a *App) ApplyConfig(next *config.Config) error {
	if a == nil || next == nil {
		return fmt.Errorf("app not initialized")
	}
	stratCfg, err := resolveStrategyConfig(a.agent.Strategies(), next.Strategy)
	if err != nil {
		return err
	}
	if err := a.agent.SetStrategy(next.Strategy.Name, stratCfg); err != nil {
		return err
	}
	a.agent.SetAutoExecute(next.Agent.AutoExecute)
	logger.SetLevel(next.App.LogLevel)

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
	logger.Infof("配置已热更新 strategy=%s auto_execute=%v", next.Strategy.Name, next.Agent.AutoExecute)
	return nil
}

// WatchConfig 监听配置文件变化并调用 ApplyConfig。
func (a *App) WatchConfig(path string) error {
	return config.Watch(path, func(next *config.Config) {
		if err := a.ApplyConfig(next); err != nil {
			logger.Warnf("配置热更新失败: %v", err)
		}
	})
}
