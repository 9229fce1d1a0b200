package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

func TestScoreColor(t *testing.T) {
	assert.True(t, scoreColor(71).Equals(color.New(color.FgRed, color.Bold)))
	assert.True(t, scoreColor(70).Equals(color.New(color.FgYellow)))
	assert.True(t, scoreColor(31).Equals(color.New(color.FgYellow)))
	assert.True(t, scoreColor(30).Equals(color.New(color.FgGreen)))
}

func TestPrintResult(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	printResult(&buf, models.AnalysisResult{
		Entities: models.Entities{IPs: []string{"192.168.1.5"}, Actions: []string{"connection"}},
		Intelligence: map[string]models.IntelligenceRecord{
			"192.168.1.5": {Type: models.PrivateIPType, IsInternal: true, Note: "Internal network address"},
		},
		ThreatScore: 0,
		Narrative:   "Threat score: 0/100. No immediate action required.",
	})

	out := buf.String()
	assert.Contains(t, out, "[192.168.1.5] Private IP - Internal network address")
	assert.Contains(t, out, "Threat score: 0/100 (low)")
	assert.Contains(t, out, "No immediate action required.")
}

func TestPrintResult_Insufficient(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	printResult(&buf, models.AnalysisResult{Insufficient: true, Narrative: "Insufficient data"})
	assert.Contains(t, buf.String(), "Insufficient data")
	assert.NotContains(t, buf.String(), "Threat score")
}
