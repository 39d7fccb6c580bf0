package strategy

const (
	SentimentMomentumName    = "sentiment_momentum"
	sentimentMomentumVersion = "1.2.0"
)

// SentimentMomentum 是默认策略：分数过阈值即交易，仓位随置信度线性放大。
type SentimentMomentum struct{}

func NewSentimentMomentum() *SentimentMomentum { return &SentimentMomentum{} }

func (s *SentimentMomentum) Name() string    { return SentimentMomentumName }
func (s *SentimentMomentum) Version() string { return sentimentMomentumVersion }
func (s *SentimentMomentum) Description() string {
	return "Trades the fused sentiment/momentum score; size scales with confidence above the minimum"
}

func (s *SentimentMomentum) DefaultConfig() Config { return BaseConfig() }

func (s *SentimentMomentum) ValidateConfig(cfg Config) error { return cfg.Validate() }

func (s *SentimentMomentum) Evaluate(ctx Context) Outcome {
	return buildIntent(ctx, ctx.Config, 1, SentimentMomentumName)
}
