package model

import "time"

// DefaultPatternConfidence is reported for merchant patterns stored without a confidence.
const DefaultPatternConfidence = 0.8

// MerchantPattern maps a merchant pattern key to a learned category.
type MerchantPattern struct {
	LastUpdated time.Time
	Metadata    map[string]any
	Confidence  *float64
	PatternKey  string
	Display     string
	CategoryID  int64
	UsageCount  int
}

// EffectiveConfidence returns the stored confidence or the default when absent.
func (p MerchantPattern) EffectiveConfidence() float64 {
	if p.Confidence == nil {
		return DefaultPatternConfidence
	}
	return *p.Confidence
}
