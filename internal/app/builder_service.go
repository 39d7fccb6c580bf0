package app

import (
	"fmt"
	"strings"
	"time"

	"sentrix/internal/agent"
	"sentrix/internal/config"
	"sentrix/internal/executor"
	"sentrix/internal/logger"
	"sentrix/internal/notifier"
	"sentrix/internal/provider"
	"sentrix/internal/risk"
	riskstore "sentrix/internal/risk/store"
	"sentrix/internal/strategy"
	"sentrix/internal/tracker"
	livehttp "sentrix/internal/transport/http/live"
	"sentrix/internal/types"
)

// buildProviderRegistry 按配置注册 binance K 线与各 JSON 情绪源。
func buildProviderRegistry(cfg config.ProvidersConfig, agentCfg config.AgentConfig) (*provider.Registry, error) {
	reg := provider.NewRegistry(provider.Options{
		Timeout:          agentCfg.ProviderTimeout(),
		ContinueOnError:  agentCfg.ContinueOnError,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown(),
	})
	if cfg.Binance.Enabled {
		bn, err := provider.NewBinance(provider.BinanceConfig{
			RESTBaseURL: cfg.Binance.RESTBaseURL,
			HTTPTimeout: time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
			Interval:    cfg.Binance.Interval,
			Limit:       cfg.Binance.Limit,
			Quote:       cfg.Binance.Quote,
			ProxyURL:    cfg.Binance.Proxy,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 binance 数据源失败: %w", err)
		}
		if err := reg.Register(bn); err != nil {
			return nil, err
		}
	}
	for _, fc := range cfg.Feeds {
		if fc.Disabled {
			logger.Infof("数据源 %s 已禁用，跳过", fc.Name)
			continue
		}
		feed, err := provider.NewFeed(provider.FeedConfig{
			Name:              fc.Name,
			Source:            fc.Source,
			URL:               fc.URL,
			HealthURL:         fc.HealthURL,
			Headers:           fc.Headers,
			HTTPTimeout:       time.Duration(fc.TimeoutSeconds) * time.Second,
			RequestsPerSecond: fc.RequestsPerSecond,
			Burst:             fc.Burst,
			ItemsPath:         fc.ItemsPath,
			TitlePath:         fc.TitlePath,
			ContentPath:       fc.ContentPath,
			URLPath:           fc.URLPath,
			TimePath:          fc.TimePath,
			EngagementPath:    fc.EngagementPath,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(feed); err != nil {
			return nil, err
		}
	}
	if len(reg.Names()) == 0 {
		return nil, fmt.Errorf("no data provider enabled")
	}
	return reg, nil
}

// buildExecutor 在 dry_run 下总是使用纸面执行器，不论 mode 配置为何。
func buildExecutor(cfg config.ExecutorConfig, agentCfg config.AgentConfig) (executor.Executor, error) {
	if agentCfg.DryRun || cfg.Mode == config.ExecutorModePaper {
		if cfg.Mode == config.ExecutorModeHTTP {
			logger.Warnf("dry_run 已开启，忽略 executor.mode=http，使用纸面执行器")
		}
		holdings := make([]types.Holding, 0, len(cfg.Paper.Holdings))
		for _, h := range cfg.Paper.Holdings {
			holdings = append(holdings, types.Holding{
				ChainID:  h.ChainID,
				Token:    h.Token,
				Symbol:   strings.ToUpper(strings.TrimSpace(h.Symbol)),
				Balance:  h.Balance,
				ValueUSD: h.ValueUSD,
			})
		}
		logger.Infof("✓ 纸面执行器已启用，持仓 %d 项", len(holdings))
		return executor.NewPaper(executor.PaperConfig{
			Holdings: holdings,
			FeeBps:   cfg.Paper.FeeBps,
			GasUSD:   cfg.Paper.GasUSD,
		}), nil
	}
	client, err := executor.NewHTTPClient(executor.HTTPConfig{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		WalletAddress: agentCfg.WalletAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化执行器失败: %w", err)
	}
	logger.Infof("✓ 兑换执行器: %s", cfg.BaseURL)
	return client, nil
}

func buildTracker(cfg config.StoreConfig) (*tracker.GormTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	t, err := tracker.NewGormTracker(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化预测追踪失败: %w", err)
	}
	logger.Infof("✓ 预测追踪写入 %s", cfg.Path)
	return t, nil
}

func buildRiskStore(cfg config.StoreConfig) (*riskstore.HistoryStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	st, err := riskstore.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化风控存储失败: %w", err)
	}
	return st, nil
}

func newTelegram(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

// httpDeps 汇总管理接口需要的组件。
type httpDeps struct {
	agent       *agent.Agent
	risk        *risk.Manager
	strategies  *strategy.Registry
	providers   *provider.Registry
	predictions livehttp.PredictionSource
}

func buildLiveHTTPServer(cfg config.AppConfig, deps httpDeps) (*livehttp.Server, error) {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, nil
	}
	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:         cfg.HTTPAddr,
		Agent:        deps.agent,
		Breaker:      deps.risk,
		Strategies:   deps.strategies,
		Health:       deps.providers,
		Predictions:  deps.predictions,
		CycleTimeout: 2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 live HTTP 失败: %w", err)
	}
	logger.Infof("✓ Live HTTP 接口监听 %s", server.Addr())
	return server, nil
}
