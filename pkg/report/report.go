// Package report renders analysis results as Markdown incident reports.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

// DefaultDir is where reports are written when no directory is configured.
const DefaultDir = "reports"

// Tactic is a MITRE ATT&CK tactic hint attached to a report.
type Tactic struct {
	ID          string
	Name        string
	Explanation string
}

// Tactics maps the entities and intelligence of a result to likely ATT&CK tactics.
func Tactics(result models.AnalysisResult) []Tactic {
	var proxy, suspicious bool
	for _, rec := range result.Intelligence {
		if rec.HasError() {
			continue
		}
		proxy = proxy || rec.IsProxy
		suspicious = suspicious || rec.IsSuspicious()
	}

	actions := make(map[string]bool, len(result.Entities.Actions))
	for _, a := range result.Entities.Actions {
		actions[strings.ToLower(a)] = true
	}

	var tactics []Tactic
	if proxy {
		tactics = append(tactics, Tactic{"TA0011", "Command and Control", "Use of proxy services to hide true source"})
	}
	if actions["login"] || actions["logon"] {
		tactics = append(tactics, Tactic{"TA0001", "Initial Access", "Potential unauthorized login attempts"})
	}
	if actions["brute-force"] || (actions["failed"] && actions["attempt"]) {
		tactics = append(tactics, Tactic{"TA0006", "Credential Access", "Repeated authentication failures"})
	}
	if actions["scan"] || actions["probe"] {
		tactics = append(tactics, Tactic{"TA0007", "Discovery", "Network scanning or service probing"})
	}
	if suspicious {
		tactics = append(tactics, Tactic{"TA0040", "Impact", "Activity from known-malicious infrastructure"})
	}
	return tactics
}

// Render builds the Markdown report body.
func Render(result models.AnalysisResult) string {
	var b strings.Builder

	b.WriteString("# ThreatSage Incident Report\n")
	fmt.Fprintf(&b, "**Date:** %s\n", result.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Alert:** %s\n", result.Entities.OriginalText)
	fmt.Fprintf(&b, "**Threat Score:** %d/100 (%s)\n\n", result.ThreatScore, models.SeverityForScore(result.ThreatScore))

	b.WriteString("## Extracted Entities\n\n")
	writeList(&b, "IP Addresses", result.Entities.IPs)
	writeList(&b, "Usernames", result.Entities.Usernames)
	writeList(&b, "Actions", result.Entities.Actions)
	writeList(&b, "Timestamps", result.Entities.Times)

	b.WriteString("\n## IP Intelligence\n\n")
	for _, ip := range orderedIPs(result) {
		rec := result.Intelligence[ip]
		fmt.Fprintf(&b, "### %s\n\n", ip)
		if rec.HasError() {
			fmt.Fprintf(&b, "**Error:** %s\n\n", rec.Error)
			continue
		}
		b.WriteString("| Attribute | Value |\n| --- | --- |\n")
		for _, row := range attributes(rec) {
			fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Analysis & Recommendation\n\n")
	b.WriteString(result.Narrative)
	b.WriteString("\n\n## Potential MITRE ATT&CK Tactics\n\n")
	tactics := Tactics(result)
	if len(tactics) == 0 {
		b.WriteString("- No clear MITRE ATT&CK tactics identified with current data\n")
	}
	for _, t := range tactics {
		fmt.Fprintf(&b, "- **%s (%s):** %s\n", t.Name, t.ID, t.Explanation)
	}

	b.WriteString("\n---\n*Report generated automatically by ThreatSage*\n")
	return b.String()
}

// Write renders result into a new file under dir and returns its path.
func Write(dir string, result models.AnalysisResult) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := fmt.Sprintf("incident-report-%s-%s.md",
		result.Timestamp.Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(Render(result)), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n", label, strings.Join(values, ", "))
}

// orderedIPs lists IPs in extraction order, then any extras sorted.
func orderedIPs(result models.AnalysisResult) []string {
	seen := make(map[string]bool)
	var ips []string
	for _, ip := range result.Entities.IPs {
		if _, ok := result.Intelligence[ip]; ok && !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	var extra []string
	for ip := range result.Intelligence {
		if !seen[ip] {
			extra = append(extra, ip)
		}
	}
	sort.Strings(extra)
	return append(ips, extra...)
}

func attributes(rec models.IntelligenceRecord) [][2]string {
	if rec.IsInternal {
		return [][2]string{
			{"Type", rec.Type},
			{"Is Internal", "true"},
			{"Reputation", rec.Reputation},
			{"Note", rec.Note},
		}
	}

	rows := [][2]string{
		{"IP", rec.IP},
		{"Country", rec.Country},
		{"Region", rec.Region},
		{"City", rec.City},
		{"ISP", rec.ISP},
		{"Organization", rec.Organization},
		{"ASN", rec.ASN},
		{"Is Proxy", fmt.Sprint(rec.IsProxy)},
		{"Is Hosting", fmt.Sprint(rec.IsHosting)},
		{"Is Mobile", fmt.Sprint(rec.IsMobile)},
		{"Timezone", rec.Timezone},
		{"Coordinates", rec.Coordinates},
		{"Reputation", rec.Reputation},
		{"Confidence", rec.Confidence},
	}
	if len(rec.ReportedActivities) > 0 {
		rows = append(rows, [2]string{"Reported Activities", strings.Join(rec.ReportedActivities, ", ")})
	}
	return rows
}
