// Package reputation provides an offline, deterministic IP reputation
// heuristic driven by a table of address prefixes.
package reputation

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

// ErrInvalidTable is returned when a prefix table file has no usable rows.
var ErrInvalidTable = errors.New("reputation table has no valid rows")

// Rule flags every address starting with Prefix (e.g. "185." or "45.13.").
type Rule struct {
	Prefix     string
	Reputation string
	Confidence string
}

// DefaultRules is the built-in placeholder table. It is not sourced from any
// real feed; load a CSV table to replace it.
var DefaultRules = []Rule{
	{Prefix: "185.", Reputation: models.ReputationSuspicious, Confidence: models.ConfidenceHigh},
	{Prefix: "45.13.", Reputation: models.ReputationSuspicious, Confidence: models.ConfidenceHigh},
	{Prefix: "176.10.", Reputation: models.ReputationSuspicious, Confidence: models.ConfidenceLow},
	{Prefix: "10.", Reputation: models.ReputationClean, Confidence: models.ConfidenceLow},
	{Prefix: "192.168.", Reputation: models.ReputationClean, Confidence: models.ConfidenceLow},
}

// ReportedActivities lists the activities attached to suspicious verdicts, by confidence.
var ReportedActivities = map[string][]string{
	models.ConfidenceHigh: {"Port scanning", "Brute force attempts"},
	models.ConfidenceLow:  {"Suspicious connections"},
}

// LoadRules reads a prefix table from a CSV file.
// Expected format: prefix,reputation,confidence (e.g. "185.,Suspicious,High").
// A header row and malformed rows are skipped.
func LoadRules(path string) ([]Rule, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reputation table: %w", err)
	}
	defer file.Close()

	rules, err := parseRules(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "reputation").Str("path", path).Int("rules", len(rules)).Msg("Loaded reputation table")
	return rules, nil
}

func parseRules(r io.Reader) ([]Rule, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	var rules []Rule
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 3 {
			continue
		}

		rule, ok := parseRule(record)
		if !ok {
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil, ErrInvalidTable
	}
	return rules, nil
}

func parseRule(record []string) (Rule, bool) {
	prefix := strings.TrimSpace(record[0])
	if prefix == "" || !strings.ContainsAny(prefix[:1], "0123456789") {
		return Rule{}, false
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}

	var reputation string
	switch strings.ToLower(strings.TrimSpace(record[1])) {
	case "suspicious":
		reputation = models.ReputationSuspicious
	case "clean":
		reputation = models.ReputationClean
	default:
		return Rule{}, false
	}

	var confidence string
	switch strings.ToLower(strings.TrimSpace(record[2])) {
	case "high":
		confidence = models.ConfidenceHigh
	case "low":
		confidence = models.ConfidenceLow
	default:
		return Rule{}, false
	}

	return Rule{Prefix: prefix, Reputation: reputation, Confidence: confidence}, true
}
