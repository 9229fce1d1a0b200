package reputation

import (
	"strings"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

// Classifier matches addresses against a prefix table. The first matching
// rule wins; unmatched addresses are Clean/Low.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over rules. A nil or empty slice selects DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify returns the reputation verdict for ip. It makes no external calls.
func (c *Classifier) Classify(ip string) models.ReputationInfo {
	for _, rule := range c.rules {
		if !strings.HasPrefix(ip, rule.Prefix) {
			continue
		}
		info := models.ReputationInfo{
			Reputation: rule.Reputation,
			Confidence: rule.Confidence,
		}
		if rule.Reputation == models.ReputationSuspicious {
			info.ReportedActivities = append([]string(nil), ReportedActivities[rule.Confidence]...)
		}
		return info
	}

	return models.ReputationInfo{
		Reputation: models.ReputationClean,
		Confidence: models.ConfidenceLow,
	}
}

// Count returns the number of rules in the table.
func (c *Classifier) Count() int {
	return len(c.rules)
}
