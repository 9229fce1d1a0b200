// Package analysis sequences extraction, enrichment, scoring, narrative
// generation and incident recording for one alert.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/database"
	"github.com/hervehildenbrand/threatsage/pkg/extractor"
	"github.com/hervehildenbrand/threatsage/pkg/memory"
	"github.com/hervehildenbrand/threatsage/pkg/metrics"
	"github.com/hervehildenbrand/threatsage/pkg/models"
	"github.com/hervehildenbrand/threatsage/pkg/narrative"
	"github.com/hervehildenbrand/threatsage/pkg/scorer"
)

// InsufficientDataMessage is the narrative of results with no usable IP.
const InsufficientDataMessage = "Insufficient data: no IP address found in the input."

// Enricher resolves IP intelligence. *enrichment.Enricher satisfies it.
type Enricher interface {
	EnrichIP(ctx context.Context, ip string) models.IntelligenceRecord
}

// Archiver receives every recorded incident. *database.IncidentWriter satisfies it.
type Archiver interface {
	Write(incident database.Incident)
}

// Analyzer owns the incident memory and drives one analysis at a time.
type Analyzer struct {
	enricher  Enricher
	memory    *memory.Memory
	generator narrative.Generator
	archive   Archiver
	now       func() time.Time
}

// NewAnalyzer creates an analyzer. A nil generator always uses the templated fallback.
func NewAnalyzer(enricher Enricher, mem *memory.Memory, generator narrative.Generator) *Analyzer {
	if generator == nil {
		generator = narrative.Disabled{}
	}
	return &Analyzer{
		enricher:  enricher,
		memory:    mem,
		generator: generator,
		now:       time.Now,
	}
}

// SetArchive attaches an optional incident archive.
func (a *Analyzer) SetArchive(archive Archiver) {
	a.archive = archive
}

// Memory returns the incident memory the analyzer writes to.
func (a *Analyzer) Memory() *memory.Memory {
	return a.memory
}

// Entities extracts indicators from input. Input that is itself a valid IP
// is taken as the only indicator.
func Entities(input string) models.Entities {
	trimmed := strings.TrimSpace(input)
	if extractor.IsValidIP(trimmed) {
		return models.Entities{
			IPs:          []string{trimmed},
			Usernames:    []string{},
			Times:        []string{},
			Actions:      []string{},
			OriginalText: input,
		}
	}
	return extractor.ExtractAll(input)
}

// Analyze runs the full pipeline for one alert or bare IP. When no IP can be
// extracted it returns an Insufficient result without scoring or recording.
// If ctx is canceled before the incident is recorded, the result is marked
// Canceled and memory and archive are left untouched.
func (a *Analyzer) Analyze(ctx context.Context, input string) models.AnalysisResult {
	result := models.AnalysisResult{
		Entities:     Entities(input),
		Intelligence: make(map[string]models.IntelligenceRecord),
		Timestamp:    a.now(),
	}

	if len(result.Entities.IPs) == 0 {
		log.Info().Str("component", "analysis").Msg("No IP addresses found in input")
		result.Insufficient = true
		result.Narrative = InsufficientDataMessage
		return result
	}

	for _, ip := range result.Entities.IPs {
		if _, done := result.Intelligence[ip]; done {
			continue
		}
		record := a.enricher.EnrichIP(ctx, ip)
		result.Intelligence[ip] = record
		logRecord(ip, record)
	}

	if canceled(ctx, &result) {
		return result
	}

	primary := result.Entities.IPs[0]
	record := result.Intelligence[primary]
	history := a.memory.HistoryFor(primary)
	score := scorer.Score(record, history)
	metrics.ThreatScores.Observe(float64(score))

	result.PrimaryIP = primary
	result.ThreatScore = score

	prompt := narrative.BuildPrompt(primary, record, input, score)
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		log.Debug().Err(err).Str("component", "analysis").Msg("Narrative generation failed, using fallback")
		result.NarrativeError = err.Error()
		text = narrative.Fallback(score)
	}
	result.Narrative = text

	if canceled(ctx, &result) {
		return result
	}

	a.memory.Record(primary, score, text)
	if a.archive != nil {
		a.archive.Write(database.Incident{
			IP:          primary,
			ThreatScore: score,
			Severity:    models.SeverityForScore(score),
			Summary:     models.TruncateSummary(text),
			Country:     record.Country,
			Reputation:  record.Reputation,
			DetectedAt:  result.Timestamp,
		})
	}

	log.Info().
		Str("component", "analysis").
		Str("ip", primary).
		Int("score", score).
		Int("seen_before", history.SeenCount).
		Msg("Incident analyzed")

	return result
}

// canceled marks result when ctx is done. Records produced under a canceled
// context are lookup failures, so nothing may be scored into history.
func canceled(ctx context.Context, result *models.AnalysisResult) bool {
	if ctx.Err() == nil {
		return false
	}
	log.Warn().Err(ctx.Err()).Str("component", "analysis").Msg("Analysis canceled, incident not recorded")
	result.Canceled = true
	return true
}

func logRecord(ip string, record models.IntelligenceRecord) {
	if record.HasError() {
		log.Warn().Str("component", "analysis").Str("ip", ip).Str("error", record.Error).Msg("Enrichment failed")
		return
	}

	event := log.Debug().Str("component", "analysis").Str("ip", ip)
	if record.IsInternal {
		event = event.Str("type", record.Type)
	} else {
		event = event.Str("country", record.Country).Str("reputation", record.Reputation)
	}
	event.Msg("Enriched IP")
}
