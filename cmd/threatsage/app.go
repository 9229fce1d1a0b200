package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/analysis"
	"github.com/hervehildenbrand/threatsage/pkg/config"
	"github.com/hervehildenbrand/threatsage/pkg/enrichment"
	"github.com/hervehildenbrand/threatsage/pkg/geo"
	"github.com/hervehildenbrand/threatsage/pkg/memory"
	"github.com/hervehildenbrand/threatsage/pkg/narrative"
	"github.com/hervehildenbrand/threatsage/pkg/reputation"
)

// pipeline bundles the components shared by every command.
type pipeline struct {
	analyzer *analysis.Analyzer
	enricher *enrichment.Enricher
	closers  []func() error
}

func newPipeline(ctx context.Context, cfg config.Config) *pipeline {
	p := &pipeline{}

	// Cache backend: Redis if configured and reachable, else the JSON file
	var store enrichment.Store
	if cfg.Cache.RedisURL != "" {
		redisStore, err := enrichment.DialRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.Cache.RedisURL).Msg("Redis cache unavailable, falling back to file cache")
		} else {
			store = redisStore
			p.closers = append(p.closers, redisStore.Close)
			log.Info().Str("url", cfg.Cache.RedisURL).Msg("Using Redis enrichment cache")
		}
	}
	if store == nil {
		store = enrichment.OpenFileStore(cfg.Cache.Path, cfg.Cache.PersistEvery)
	}

	// Reputation table: CSV file if configured, else built-in rules
	var rules []reputation.Rule
	if cfg.ReputationTable != "" {
		loaded, err := reputation.LoadRules(cfg.ReputationTable)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.ReputationTable).Msg("Failed to load reputation table, using built-in rules")
		} else {
			rules = loaded
		}
	}
	classifier := reputation.NewClassifier(rules)
	log.Debug().Int("rules", classifier.Count()).Msg("Reputation rules loaded")

	lookup := geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.Timeout)
	p.enricher = enrichment.NewEnricher(lookup, classifier, store, cfg.Cache.TTL)

	var generator narrative.Generator = narrative.Disabled{}
	if cfg.Narrative.BaseURL != "" {
		generator = narrative.NewClient(cfg.Narrative.BaseURL, cfg.Narrative.Model, cfg.Narrative.Timeout)
		log.Debug().Str("url", cfg.Narrative.BaseURL).Str("model", cfg.Narrative.Model).Msg("Narrative generation enabled")
	}

	mem := memory.Open(cfg.MemoryPath)
	p.analyzer = analysis.NewAnalyzer(p.enricher, mem, generator)
	return p
}

// Close flushes the enrichment cache and releases backends.
func (p *pipeline) Close() error {
	errs := []error{p.enricher.Close()}
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
