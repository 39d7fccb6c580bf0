package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	symbolpkg "sentrix/internal/pkg/symbol"
	"sentrix/internal/pkg/text"
	"sentrix/internal/types"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	feedVersion         = "1.0.0"
	defaultFeedRate     = 1.0
	maxFeedResponseSize = 4 << 20
)

// FeedConfig 描述一个返回 JSON 的情绪数据源，字段通过 gjson 路径提取。
// URL 中的 {symbol} 会被替换为资产名。
type FeedConfig struct {
	Name              string
	Source            string
	URL               string
	HealthURL         string
	Headers           map[string]string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int

	ItemsPath      string
	TitlePath      string
	ContentPath    string
	URLPath        string
	TimePath       string
	EngagementPath string
}

func (c FeedConfig) withDefaults() FeedConfig {
	out := c
	out.Name = strings.TrimSpace(out.Name)
	out.Source = strings.ToLower(strings.TrimSpace(out.Source))
	if out.Source == "" {
		out.Source = strings.ToLower(out.Name)
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = defaultFeedRate
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	if out.TitlePath == "" {
		out.TitlePath = "title"
	}
	return out
}

// Feed 是基于 HTTP + gjson 的通用情绪数据源，请求经过令牌桶限速。
type Feed struct {
	cfg     FeedConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewFeed(cfg FeedConfig) (*Feed, error) {
	final := cfg.withDefaults()
	if final.Name == "" {
		return nil, fmt.Errorf("feed name is required")
	}
	if _, err := url.Parse(strings.ReplaceAll(final.URL, "{symbol}", "X")); err != nil || strings.TrimSpace(final.URL) == "" {
		return nil, fmt.Errorf("feed %s: invalid url %q", final.Name, final.URL)
	}
	return &Feed{
		cfg:     final,
		client:  &http.Client{Timeout: final.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSecond), final.Burst),
	}, nil
}

func (f *Feed) Name() string    { return f.cfg.Name }
func (f *Feed) Version() string { return feedVersion }

func (f *Feed) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(f.cfg.HealthURL) == "" {
		return nil
	}
	_, err := f.get(ctx, f.cfg.HealthURL)
	return err
}

func (f *Feed) Fetch(ctx context.Context, req Request) (Result, error) {
	asset := symbolpkg.Asset(req.Symbol)
	target := strings.ReplaceAll(f.cfg.URL, "{symbol}", url.QueryEscape(asset))
	body, err := f.get(ctx, target)
	if err != nil {
		return Result{}, err
	}
	items, err := f.parse(body, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Source: f.cfg.Name, FetchedAt: time.Now().UTC(), Items: items}, nil
}

func (f *Feed) get(ctx context.Context, target string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed %s rate limit: %w", f.cfg.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("feed %s: build request: %w", f.cfg.Name, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range f.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.cfg.Name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedResponseSize))
	if err != nil {
		return nil, fmt.Errorf("feed %s: read body: %w", f.cfg.Name, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed %s: status %d: %s", f.cfg.Name, resp.StatusCode, text.Truncate(string(body), 200))
	}
	return body, nil
}

func (f *Feed) parse(body []byte, req Request) ([]types.RawSentimentItem, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("feed %s: invalid json", f.cfg.Name)
	}
	root := gjson.ParseBytes(body)
	list := root
	if f.cfg.ItemsPath != "" {
		list = root.Get(f.cfg.ItemsPath)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("feed %s: %q is not an array", f.cfg.Name, f.cfg.ItemsPath)
	}
	var out []types.RawSentimentItem
	list.ForEach(func(_, node gjson.Result) bool {
		item := types.RawSentimentItem{
			Source:  f.cfg.Source,
			Title:   strings.TrimSpace(node.Get(f.cfg.TitlePath).String()),
			Content: getString(node, f.cfg.ContentPath),
			URL:     getString(node, f.cfg.URLPath),
		}
		if f.cfg.EngagementPath != "" {
			item.Engagement = node.Get(f.cfg.EngagementPath).Float()
		}
		if f.cfg.TimePath != "" {
			item.Timestamp = parseTime(node.Get(f.cfg.TimePath))
		}
		if item.Title == "" && item.Content == "" {
			return true
		}
		if !req.Since.IsZero() && !item.Timestamp.IsZero() && item.Timestamp.Before(req.Since) {
			return true
		}
		out = append(out, item)
		return req.Limit <= 0 || len(out) < req.Limit
	})
	return out, nil
}

func getString(node gjson.Result, path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSpace(node.Get(path).String())
}

// parseTime 支持 unix 秒、unix 毫秒与 RFC3339 字符串。
func parseTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
