package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.Bold)
	dimColor    = color.New(color.Faint)
)

func scoreColor(score int) *color.Color {
	switch {
	case score > 70:
		return color.New(color.FgRed, color.Bold)
	case score > 30:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func printResult(w io.Writer, result models.AnalysisResult) {
	headerColor.Fprintln(w, "=== ThreatSage Analysis ===")
	if result.Insufficient {
		color.New(color.FgYellow).Fprintln(w, result.Narrative)
		return
	}

	e := result.Entities
	printList(w, "IPs", e.IPs)
	printList(w, "Usernames", e.Usernames)
	printList(w, "Times", e.Times)
	printList(w, "Actions", e.Actions)
	fmt.Fprintln(w)

	ips := make([]string, 0, len(result.Intelligence))
	for ip := range result.Intelligence {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	for _, ip := range ips {
		printRecord(w, ip, result.Intelligence[ip])
	}

	labelColor.Fprint(w, "Threat score: ")
	scoreColor(result.ThreatScore).Fprintf(w, "%d/100 (%s)\n", result.ThreatScore, models.SeverityForScore(result.ThreatScore))
	labelColor.Fprintln(w, "Recommendation:")
	fmt.Fprintln(w, result.Narrative)
	if result.NarrativeError != "" {
		dimColor.Fprintf(w, "(narrative fallback: %s)\n", result.NarrativeError)
	}
}

func printList(w io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	labelColor.Fprintf(w, "%-10s ", label+":")
	fmt.Fprintln(w, strings.Join(values, ", "))
}

func printRecord(w io.Writer, ip string, rec models.IntelligenceRecord) {
	labelColor.Fprintf(w, "[%s] ", ip)
	switch {
	case rec.HasError():
		color.New(color.FgRed).Fprintf(w, "error: %s\n", rec.Error)
	case rec.IsInternal:
		fmt.Fprintf(w, "%s - %s\n", rec.Type, rec.Note)
	default:
		fmt.Fprintf(w, "%s, %s (%s) reputation=%s/%s", rec.City, rec.Country, rec.ISP, rec.Reputation, rec.Confidence)
		if rec.IsProxy {
			fmt.Fprint(w, " proxy")
		}
		if rec.IsHosting {
			fmt.Fprint(w, " hosting")
		}
		fmt.Fprintln(w)
		if len(rec.ReportedActivities) > 0 {
			dimColor.Fprintf(w, "    reported: %s\n", strings.Join(rec.ReportedActivities, ", "))
		}
	}
}

func printIncidents(w io.Writer, incidents []models.IncidentLogEntry) {
	headerColor.Fprintf(w, "=== Incident log (%d) ===\n", len(incidents))
	if len(incidents) == 0 {
		fmt.Fprintln(w, "No incidents recorded.")
		return
	}
	for _, inc := range incidents {
		fmt.Fprintf(w, "%s  %-39s ", formatTimestamp(inc.Timestamp), inc.IP)
		scoreColor(inc.ThreatScore).Fprintf(w, "%3d\n", inc.ThreatScore)
	}
}

func printHistory(w io.Writer, ip string, h models.IPHistory) {
	headerColor.Fprintf(w, "=== History for %s ===\n", ip)
	fmt.Fprintf(w, "Seen %d time(s)\n", h.SeenCount)
	for _, v := range h.PreviousVerdicts {
		fmt.Fprintf(w, "%s  ", formatTimestamp(v.Timestamp))
		scoreColor(v.ThreatScore).Fprintf(w, "%3d", v.ThreatScore)
		fmt.Fprintf(w, "  %s\n", v.Summary)
	}
}

func formatTimestamp(ts time.Time) string {
	return ts.Local().Format("2006-01-02 15:04:05")
}
