package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	symbolpkg "sentrix/internal/pkg/symbol"
	"sentrix/internal/scheduler"
	"sentrix/internal/types"

	"github.com/adshao/go-binance/v2"
)

const (
	BinanceName     = "binance"
	binanceVersion  = "1.0.0"
	maxKlineLimit   = 1000
	defaultInterval = "1h"
	defaultLimit    = 72
)

// BinanceConfig 配置现货 K 线数据源。
type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	Interval    string
	Limit       int
	Quote       string
	ProxyURL    string
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if strings.TrimSpace(out.Interval) == "" {
		out.Interval = defaultInterval
	}
	if out.Limit <= 0 {
		out.Limit = defaultLimit
	}
	if strings.TrimSpace(out.Quote) == "" {
		out.Quote = "USDT"
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	return out
}

// Binance 基于 go-binance SDK 拉取现货 K 线。
type Binance struct {
	cfg    BinanceConfig
	client *binance.Client
}

func NewBinance(cfg BinanceConfig) (*Binance, error) {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Binance{cfg: final, client: client}, nil
}

func (b *Binance) Name() string    { return BinanceName }
func (b *Binance) Version() string { return binanceVersion }

func (b *Binance) HealthCheck(ctx context.Context) error {
	return b.client.NewPingService().Do(ctx)
}

// Fetch 返回已收盘的 K 线，最新的未收盘 K 线会被丢弃。
func (b *Binance) Fetch(ctx context.Context, req Request) (Result, error) {
	pair := symbolpkg.Pair(req.Symbol, b.cfg.Quote).Binance()
	if pair == "" {
		return Result{}, fmt.Errorf("symbol is required")
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		interval = b.cfg.Interval
	}
	limit := req.Limit
	if limit <= 0 {
		limit = b.cfg.Limit
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := b.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit)
	if !req.Since.IsZero() {
		svc = svc.StartTime(req.Since.UnixMilli())
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("binance klines %s %s: %w", pair, interval, err)
	}
	bars := make([]types.PriceBar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		bars = append(bars, types.PriceBar{
			Timestamp: time.UnixMilli(kl.OpenTime).UTC(),
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		bars = scheduler.DropUnclosedBar(bars, dur)
	}
	return Result{Source: BinanceName, FetchedAt: time.Now().UTC(), Bars: bars}, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
