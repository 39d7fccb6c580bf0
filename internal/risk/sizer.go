package risk

import (
	"fmt"
	"math"
	"strings"

	"sentrix/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SizeRequest 是 SizePosition 的输入。
type SizeRequest struct {
	RequestedPercent float64
	Confidence       float64
	Portfolio        types.Portfolio
	// TotalValueUSD 为 0 时取 Portfolio.TotalValueUSD()。
	TotalValueUSD float64
	FromToken     string
}

// SizeResult 是调整后的仓位。
type SizeResult struct {
	Percent     float64  `json:"percent"`
	USD         float64  `json:"usd"`
	Adjustments []string `json:"adjustments,omitempty"`
}

// SizePosition applies, in order: confidence scaling, the percent cap, the
// USD cap and the available-balance cap (95% of the source holding).
func SizePosition(req SizeRequest, cfg Config) SizeResult {
	var adj []string
	total := req.TotalValueUSD
	if total <= 0 {
		total = req.Portfolio.TotalValueUSD()
	}
	if total <= 0 {
		return SizeResult{Adjustments: []string{"portfolio value is zero"}}
	}
	totalD := decimal.NewFromFloat(total)
	pct := decimal.NewFromFloat(math.Max(0, req.RequestedPercent))

	if cfg.ConfidenceScaling {
		mult := ConfidenceMultiplier(req.Confidence, cfg.MinConfidence)
		switch {
		case mult == 0:
			adj = append(adj, fmt.Sprintf("confidence %.2f below minimum %.2f", req.Confidence, cfg.MinConfidence))
			pct = decimal.Zero
		case mult < 1:
			pct = pct.Mul(decimal.NewFromFloat(mult))
			adj = append(adj, fmt.Sprintf("scaled by confidence x%.2f", mult))
		}
	}

	if maxPct := decimal.NewFromFloat(cfg.MaxPositionPercent); cfg.MaxPositionPercent > 0 && pct.GreaterThan(maxPct) {
		adj = append(adj, fmt.Sprintf("capped at max position %.2f%%", cfg.MaxPositionPercent))
		pct = maxPct
	}

	usd := totalD.Mul(pct).Div(hundred)
	if maxUSD := decimal.NewFromFloat(cfg.MaxPositionSizeUSD); cfg.MaxPositionSizeUSD > 0 && usd.GreaterThan(maxUSD) {
		usd = maxUSD
		pct = usd.Mul(hundred).Div(totalD)
		adj = append(adj, fmt.Sprintf("capped at max position size $%s", maxUSD.StringFixed(2)))
	}

	if pct.IsPositive() {
		held := req.Portfolio.ValueOf(req.FromToken)
		if held <= 0 {
			adj = append(adj, fmt.Sprintf("source token %s not held", displayToken(req.FromToken)))
			pct, usd = decimal.Zero, decimal.Zero
		} else {
			avail := decimal.NewFromFloat(held).Mul(decimal.NewFromFloat(balanceBuffer))
			if usd.GreaterThan(avail) {
				usd = avail
				pct = usd.Mul(hundred).Div(totalD)
				adj = append(adj, fmt.Sprintf("capped by available %s balance $%s", displayToken(req.FromToken), avail.StringFixed(2)))
			}
		}
	}

	p, _ := pct.Round(4).Float64()
	u, _ := usd.Round(2).Float64()
	return SizeResult{Percent: p, USD: u, Adjustments: adj}
}

// ConfidenceMultiplier is 0 below minConf and rises linearly from 0.5 at minConf to
// 1.0 at full confidence.
func ConfidenceMultiplier(confidence, minConf float64) float64 {
	if confidence < minConf {
		return 0
	}
	span := 1 - minConf
	if span <= 0 {
		return 1
	}
	ratio := math.Min(1, (confidence-minConf)/span)
	return 0.5 + 0.5*ratio
}

// CheckConcentration reports whether buying tradeUSD of toToken would lift its
// share of the portfolio above maxPct, and the resulting share.
func CheckConcentration(pf types.Portfolio, toToken string, tradeUSD, maxPct float64) (bool, float64) {
	total := pf.TotalValueUSD()
	if total <= 0 {
		return false, 0
	}
	post := decimal.NewFromFloat(pf.ValueOf(toToken)).
		Add(decimal.NewFromFloat(math.Max(0, tradeUSD))).
		Mul(hundred).
		Div(decimal.NewFromFloat(total))
	postPct, _ := post.Round(4).Float64()
	return maxPct > 0 && postPct > maxPct, postPct
}

// KellyFraction 按 (p*b - q)/b 计算 Kelly 比例并乘以 fraction，结果落在 [0, 1]。
func KellyFraction(winProb, avgWin, avgLoss, fraction float64) float64 {
	if avgWin <= 0 || avgLoss <= 0 || winProb <= 0 {
		return 0
	}
	p := math.Min(1, winProb)
	b := avgWin / avgLoss
	k := (p*b - (1 - p)) / b * fraction
	return math.Max(0, math.Min(1, k))
}

func displayToken(token string) string {
	if strings.TrimSpace(token) == "" {
		return "(unknown)"
	}
	return token
}
