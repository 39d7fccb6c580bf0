package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sentrix/internal/types"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// HTTPConfig 配置外部兑换服务。
type HTTPConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	WalletAddress string
}

// HTTPClient 通过 REST 调用外部兑换服务：POST /quote、POST /execute、GET /portfolio。
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	wallet     string
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("executor.base_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse executor.base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     strings.TrimSpace(cfg.APIKey),
		wallet:     strings.TrimSpace(cfg.WalletAddress),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *HTTPClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *HTTPClient) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/quote", req)
	if err != nil {
		return QuoteResult{}, err
	}
	res := gjson.ParseBytes(body)
	out := QuoteResult{
		Success:         firstOf(res, "success").Bool(),
		QuoteID:         firstOf(res, "quoteId", "quote_id", "id").String(),
		EstimatedOutput: decimalOf(firstOf(res, "estimatedOutput", "estimated_output", "toAmount")),
		Fee:             decimalOf(firstOf(res, "fee", "feeAmount")),
		GasEstimate:     decimalOf(firstOf(res, "gasEstimate", "gas_estimate", "gas")),
		Route:           routeOf(firstOf(res, "route")),
		Error:           firstOf(res, "error", "message").String(),
	}
	if !firstOf(res, "success").Exists() {
		out.Success = out.Error == "" && out.EstimatedOutput.IsPositive()
	}
	return out, nil
}

func (c *HTTPClient) Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error) {
	if req.WalletAddress == "" {
		req.WalletAddress = c.wallet
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/execute", req)
	if err != nil {
		return ExecutionResult{}, err
	}
	res := gjson.ParseBytes(body)
	out := ExecutionResult{
		Success:      firstOf(res, "success").Bool(),
		TxHash:       firstOf(res, "txHash", "tx_hash", "hash").String(),
		OutputAmount: decimalOf(firstOf(res, "outputAmount", "output_amount", "toAmount")),
		Error:        firstOf(res, "error", "message").String(),
		ExecutedAt:   time.Now().UTC(),
	}
	if !firstOf(res, "success").Exists() {
		out.Success = out.Error == "" && out.TxHash != ""
	}
	return out, nil
}

// Portfolio 读取 GET /portfolio?wallet=... 的持仓列表。
func (c *HTTPClient) Portfolio(ctx context.Context) (types.Portfolio, error) {
	path := "/portfolio"
	if c.wallet != "" {
		path += "?wallet=" + url.QueryEscape(c.wallet)
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return types.Portfolio{}, err
	}
	res := gjson.ParseBytes(body)
	list := firstOf(res, "holdings", "data")
	if !list.Exists() && res.IsArray() {
		list = res
	}
	pf := types.Portfolio{UpdatedAt: time.Now().UTC()}
	list.ForEach(func(_, h gjson.Result) bool {
		pf.Holdings = append(pf.Holdings, types.Holding{
			ChainID:  firstOf(h, "chainId", "chain_id").Int(),
			Token:    firstOf(h, "token", "address").String(),
			Symbol:   strings.ToUpper(firstOf(h, "symbol").String()),
			Balance:  firstOf(h, "balance").Float(),
			ValueUSD: firstOf(h, "valueUsd", "value_usd").Float(),
		})
		return true
	})
	return pf, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode executor request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build executor request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call executor %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read executor response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if len(data) == 0 {
			return nil, fmt.Errorf("executor returned %s", resp.Status)
		}
		return nil, fmt.Errorf("executor returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("executor %s: invalid json response", path)
	}
	return data, nil
}

func (c *HTTPClient) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("executor base url not set")
	}
	ref, err := url.Parse(strings.TrimPrefix(strings.TrimSpace(path), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid executor path %q: %w", path, err)
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref), nil
}

// firstOf returns the first existing field among keys.
func firstOf(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func decimalOf(v gjson.Result) decimal.Decimal {
	if !v.Exists() {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.String()))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// routeOf accepts a plain string or an array of hops.
func routeOf(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var hops []string
	v.ForEach(func(_, hop gjson.Result) bool {
		name := firstOf(hop, "name", "protocol", "dex").String()
		if name == "" {
			name = hop.String()
		}
		hops = append(hops, name)
		return true
	})
	return strings.Join(hops, " -> ")
}
