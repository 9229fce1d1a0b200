// Package extractor pulls indicators (IPs, usernames, clock times, action
// keywords) out of free-text security alerts.
package extractor

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

var (
	ipPattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	usernamePattern = regexp.MustCompile(`(?i)(?:user|account|username|login)[\s:]+([a-zA-Z0-9_\-.]+)`)
	timePattern     = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AP]M)?\b`)
)

// ActionKeywords is the vocabulary of security-relevant actions, in reporting order.
var ActionKeywords = []string{
	"login", "logon", "access", "authentication", "attempt",
	"failed", "success", "connect", "connection", "SSH", "RDP",
	"brute-force", "attack", "scan", "probe",
}

// ExtractAll runs every extractor over text. It never fails; missing
// indicators come back as empty slices.
func ExtractAll(text string) models.Entities {
	return models.Entities{
		IPs:          ExtractIPs(text),
		Usernames:    ExtractUsernames(text),
		Times:        ExtractTimes(text),
		Actions:      ExtractActions(text),
		OriginalText: text,
	}
}

// ExtractIPs returns dotted-quad substrings that parse as real addresses,
// in order of appearance. Duplicates are kept.
func ExtractIPs(text string) []string {
	ips := []string{}
	for _, candidate := range ipPattern.FindAllString(text, -1) {
		if IsValidIP(candidate) {
			ips = append(ips, candidate)
		}
	}
	return ips
}

// ExtractUsernames returns the token following each user/account/username/login trigger.
func ExtractUsernames(text string) []string {
	names := []string{}
	for _, m := range usernamePattern.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1])
	}
	return names
}

// ExtractTimes returns clock-time substrings such as "3:44", "03:44:10" or "03:44 AM".
func ExtractTimes(text string) []string {
	times := timePattern.FindAllString(text, -1)
	if times == nil {
		return []string{}
	}
	return times
}

// ExtractActions returns each vocabulary keyword contained in text
// (case-insensitive), in vocabulary order.
func ExtractActions(text string) []string {
	lower := strings.ToLower(text)
	actions := []string{}
	for _, keyword := range ActionKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			actions = append(actions, keyword)
		}
	}
	return actions
}

// IsValidIP reports whether s is a syntactically valid IPv4 or IPv6 address.
func IsValidIP(s string) bool {
	_, err := netip.ParseAddr(strings.TrimSpace(s))
	return err == nil
}
