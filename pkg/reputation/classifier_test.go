package reputation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

func TestClassifier_DefaultRules(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name       string
		ip         string
		reputation string
		confidence string
		activities int
	}{
		{"185 prefix", "185.107.56.21", models.ReputationSuspicious, models.ConfidenceHigh, 2},
		{"45.13 prefix", "45.13.22.98", models.ReputationSuspicious, models.ConfidenceHigh, 2},
		{"176.10 prefix", "176.10.99.200", models.ReputationSuspicious, models.ConfidenceLow, 1},
		{"45 without 13", "45.14.1.1", models.ReputationClean, models.ConfidenceLow, 0},
		{"private 10", "10.1.2.3", models.ReputationClean, models.ConfidenceLow, 0},
		{"private 192.168", "192.168.1.5", models.ReputationClean, models.ConfidenceLow, 0},
		{"public clean", "8.8.8.8", models.ReputationClean, models.ConfidenceLow, 0},
		{"18.50 is not 185", "18.50.1.1", models.ReputationClean, models.ConfidenceLow, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.ip)
			assert.Equal(t, tt.reputation, got.Reputation)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Len(t, got.ReportedActivities, tt.activities)
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, c.Classify("185.107.56.21"), c.Classify("185.107.56.21"))
}

func TestClassifier_ActivitiesNotShared(t *testing.T) {
	c := NewClassifier(nil)

	first := c.Classify("185.1.1.1")
	first.ReportedActivities[0] = "mutated"

	second := c.Classify("185.1.1.1")
	assert.Equal(t, "Port scanning", second.ReportedActivities[0])
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reputation.csv")
	content := `prefix,reputation,confidence
# known scanners
203.0.113,Suspicious,High
198.51.,suspicious,low
bad-row
100.64.,unknown,High
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "203.0.113.", rules[0].Prefix)

	c := NewClassifier(rules)
	assert.Equal(t, 2, c.Count())

	got := c.Classify("203.0.113.7")
	assert.Equal(t, models.ReputationSuspicious, got.Reputation)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)

	got = c.Classify("198.51.100.1")
	assert.Equal(t, models.ConfidenceLow, got.Confidence)

	// The custom table replaces the defaults entirely.
	assert.Equal(t, models.ReputationClean, c.Classify("185.107.56.21").Reputation)
}

func TestParseRules_Empty(t *testing.T) {
	_, err := parseRules(strings.NewReader("prefix,reputation,confidence\n"))
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
