package risk

import "time"

// Config 是仓位与熔断参数，百分比均为 0-100。
type Config struct {
	MaxPositionPercent      float64 `toml:"max_position_percent" json:"max_position_percent"`
	MaxPositionSizeUSD      float64 `toml:"max_position_size_usd" json:"max_position_size_usd"`
	MinConfidence           float64 `toml:"min_confidence" json:"min_confidence"`
	ConfidenceScaling       bool    `toml:"confidence_scaling" json:"confidence_scaling"`
	MaxConcentrationPercent float64 `toml:"max_concentration_percent" json:"max_concentration_percent"`
	MaxDrawdownPercent      float64 `toml:"max_drawdown_percent" json:"max_drawdown_percent"`
	MaxTradesPerHour        int     `toml:"max_trades_per_hour" json:"max_trades_per_hour"`
	DailyLossLimitPercent   float64 `toml:"daily_loss_limit_percent" json:"daily_loss_limit_percent"`
	KellyFraction           float64 `toml:"kelly_fraction" json:"kelly_fraction"`
	KellyPayoffRatio        float64 `toml:"kelly_payoff_ratio" json:"kelly_payoff_ratio"`
	ErrorThreshold          int     `toml:"error_threshold" json:"error_threshold"`
}

func DefaultConfig() Config {
	return Config{
		MaxPositionPercent:      25,
		MaxPositionSizeUSD:      1000,
		MinConfidence:           0.6,
		ConfidenceScaling:       true,
		MaxConcentrationPercent: 60,
		MaxDrawdownPercent:      15,
		MaxTradesPerHour:        10,
		DailyLossLimitPercent:   10,
		KellyFraction:           0.25,
		KellyPayoffRatio:        1.5,
		ErrorThreshold:          3,
	}
}

const (
	maxTradeHistory   = 100
	snapshotRetention = 48 * time.Hour
	balanceBuffer     = 0.95
	minTradePercent   = 1.0
)

// cooldowns 是各触发类型到自动复位的冷却时间。
var cooldowns = map[TriggerReason]time.Duration{
	TriggerDrawdown:  120 * time.Minute,
	TriggerDailyLoss: 240 * time.Minute,
	TriggerFrequency: 60 * time.Minute,
	TriggerErrors:    30 * time.Minute,
	TriggerManual:    60 * time.Minute,
}

// Cooldown returns how long reason keeps the breaker open.
func Cooldown(reason TriggerReason) time.Duration {
	if d, ok := cooldowns[reason]; ok {
		return d
	}
	return 60 * time.Minute
}
