// Package scorer maps intelligence and history to a bounded 0-100 threat score.
package scorer

import "github.com/hervehildenbrand/threatsage/pkg/models"

// Score weights. Contributions are additive and the sum is clamped to MaxScore.
const (
	MaxScore = 100

	proxyWeight          = 30
	hostingWeight        = 20
	historyWeightPerSeen = 10
	historyWeightCap     = 30
	suspiciousHighWeight = 30
	suspiciousWeight     = 15
	highRiskWeight       = 20
)

// HighRiskCountries add highRiskWeight when they appear as the record's country.
var HighRiskCountries = map[string]bool{
	"Russia":      true,
	"China":       true,
	"North Korea": true,
	"Iran":        true,
}

// Score returns the threat score for record given the IP's history. It is
// pure: the same inputs always give the same output.
func Score(record models.IntelligenceRecord, history models.IPHistory) int {
	score := 0

	if record.IsProxy {
		score += proxyWeight
	}
	if record.IsHosting {
		score += hostingWeight
	}

	score += min(max(history.SeenCount, 0)*historyWeightPerSeen, historyWeightCap)

	if record.Reputation == models.ReputationSuspicious {
		if record.Confidence == models.ConfidenceHigh {
			score += suspiciousHighWeight
		} else {
			score += suspiciousWeight
		}
	}

	if HighRiskCountries[record.Country] {
		score += highRiskWeight
	}

	return min(score, MaxScore)
}
