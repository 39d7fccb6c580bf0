package sentiment

import (
	"math"
	"strings"
)

const (
	minRecency = 0.1

	engagementLow    = 10
	engagementMedium = 100
	engagementHigh   = 1000
	engagementViral  = 10000
)

// 来源可信度权重，未知来源使用 unknownSourceWeight。
var defaultSourceWeights = map[string]float64{
	"reddit":  1.0,
	"tavily":  0.85,
	"twitter": 0.9,
	"news":    0.95,
}

const unknownSourceWeight = 0.75

// 各来源互动数的量纲不同，先换算到 reddit 的尺度再套阈值。
var engagementScale = map[string]float64{
	"reddit":  1,
	"twitter": 0.5,
	"news":    2,
	"tavily":  1,
}

// RecencyMultiplier returns exp(-age/decay) floored at 0.1; non-positive
// ages count as fresh.
func RecencyMultiplier(ageHours, decayHours float64) float64 {
	if ageHours <= 0 {
		return 1
	}
	if decayHours <= 0 {
		decayHours = defaultRecencyDecayHours
	}
	m := math.Exp(-ageHours / decayHours)
	if m < minRecency {
		return minRecency
	}
	return m
}

// EngagementMultiplier maps source-scaled engagement onto [0.8, 1.5].
func EngagementMultiplier(source string, engagement float64) float64 {
	scale, ok := engagementScale[normalizeSource(source)]
	if !ok {
		scale = 1
	}
	e := engagement * scale
	switch {
	case e >= engagementViral:
		return 1.5
	case e >= engagementHigh:
		return 1.35
	case e >= engagementMedium:
		return 1.2
	case e >= engagementLow:
		return 1.0
	default:
		return 0.8
	}
}

func (a *Analyzer) sourceWeight(source string) float64 {
	if w, ok := a.sourceWeights[normalizeSource(source)]; ok {
		return w
	}
	return unknownSourceWeight
}

func normalizeSource(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}
