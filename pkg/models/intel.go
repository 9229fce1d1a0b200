// Package models defines data structures for alert entities, IP intelligence,
// and incident history.
package models

import "time"

// Reputation values attached by the reputation classifier.
const (
	ReputationClean         = "Clean"
	ReputationSuspicious    = "Suspicious"
	ReputationNotApplicable = "N/A"
)

// Confidence levels for a reputation verdict.
const (
	ConfidenceLow  = "Low"
	ConfidenceHigh = "High"
)

// NotAvailable is the placeholder for geolocation fields the service did not return.
const NotAvailable = "N/A"

// PrivateIPType is the Type value of records for private-range addresses.
const PrivateIPType = "Private IP"

// IntelligenceRecord is the normalized geolocation + reputation bundle for one IP.
// Fields are grouped by origin. Reputation fields are applied after geolocation
// fields by Merge, so they win any collision.
type IntelligenceRecord struct {
	// Geolocation (geo service)
	IP           string `json:"IP,omitempty"`
	Country      string `json:"Country,omitempty"`
	Region       string `json:"Region,omitempty"`
	City         string `json:"City,omitempty"`
	ISP          string `json:"ISP,omitempty"`
	Organization string `json:"Organization,omitempty"`
	ASN          string `json:"ASN,omitempty"`
	IsProxy      bool   `json:"Is Proxy"`
	IsHosting    bool   `json:"Is Hosting"`
	IsMobile     bool   `json:"Is Mobile"`
	Timezone     string `json:"Timezone,omitempty"`
	Coordinates  string `json:"Coordinates,omitempty"` // "lat,lon"

	// Reputation (classifier)
	Reputation         string   `json:"Reputation,omitempty"`
	Confidence         string   `json:"Confidence,omitempty"`
	ReportedActivities []string `json:"Reported Activities,omitempty"`

	// Private address short-circuit
	Type       string `json:"Type,omitempty"`
	IsInternal bool   `json:"Is Internal,omitempty"`
	Note       string `json:"Note,omitempty"`

	// Failure
	Error    string `json:"Error,omitempty"`
	Fallback bool   `json:"Fallback,omitempty"`
}

// HasError reports whether the record describes a failed lookup.
func (r IntelligenceRecord) HasError() bool {
	return r.Error != ""
}

// IsSuspicious reports whether the classifier flagged the address.
func (r IntelligenceRecord) IsSuspicious() bool {
	return r.Reputation == ReputationSuspicious
}

// ReputationInfo is the classifier's contribution to an IntelligenceRecord.
type ReputationInfo struct {
	Reputation         string
	Confidence         string
	ReportedActivities []string
}

// Merge returns a copy of geo with the reputation fields applied on top.
func Merge(geo IntelligenceRecord, rep ReputationInfo) IntelligenceRecord {
	merged := geo
	merged.Reputation = rep.Reputation
	merged.Confidence = rep.Confidence
	if len(rep.ReportedActivities) > 0 {
		merged.ReportedActivities = append([]string(nil), rep.ReportedActivities...)
	} else {
		merged.ReportedActivities = nil
	}
	return merged
}

// Entities holds the indicators pulled out of one alert.
type Entities struct {
	IPs          []string `json:"ips"`
	Usernames    []string `json:"usernames"`
	Times        []string `json:"times"`
	Actions      []string `json:"actions"`
	OriginalText string   `json:"original_text"`
}

// AnalysisResult is what the analyzer hands back to callers.
type AnalysisResult struct {
	Entities       Entities                      `json:"entities"`
	Intelligence   map[string]IntelligenceRecord `json:"intelligence_by_ip"`
	PrimaryIP      string                        `json:"primary_ip,omitempty"`
	ThreatScore    int                           `json:"threat_score"`
	Narrative      string                        `json:"narrative"`
	NarrativeError string                        `json:"narrative_error,omitempty"`
	Insufficient   bool                          `json:"insufficient,omitempty"`
	Canceled       bool                          `json:"canceled,omitempty"`
	Timestamp      time.Time                     `json:"timestamp"`
}
