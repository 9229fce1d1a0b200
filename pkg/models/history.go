package models

import "time"

// History bounds.
const (
	MaxVerdictsPerIP = 5
	MaxIncidents     = 100
	MaxSummaryLength = 100
	summaryEllipsis  = "..."
)

// Verdict is a compact record of one past scoring outcome for an IP.
type Verdict struct {
	Timestamp   time.Time `json:"timestamp"`
	ThreatScore int       `json:"threat_score"`
	Summary     string    `json:"summary"`
}

// IPHistory is the per-IP rolling history. PreviousVerdicts is ordered oldest first.
type IPHistory struct {
	SeenCount        int       `json:"seen_count"`
	PreviousVerdicts []Verdict `json:"previous_verdicts"`
}

// IncidentLogEntry is one row of the global incident log.
type IncidentLogEntry struct {
	IP          string    `json:"ip"`
	Timestamp   time.Time `json:"timestamp"`
	ThreatScore int       `json:"threat_score"`
}

// TruncateSummary cuts s to MaxSummaryLength characters, marking the cut with an ellipsis.
func TruncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxSummaryLength {
		return s
	}
	return string(runes[:MaxSummaryLength-len(summaryEllipsis)]) + summaryEllipsis
}

// Severity levels derived from a threat score.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityForScore buckets a 0-100 threat score.
func SeverityForScore(score int) string {
	switch {
	case score > 85:
		return SeverityCritical
	case score > 70:
		return SeverityHigh
	case score > 30:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
