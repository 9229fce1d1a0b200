package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hervehildenbrand/threatsage/pkg/config"
	"github.com/hervehildenbrand/threatsage/pkg/database"
	"github.com/hervehildenbrand/threatsage/pkg/feed"
	"github.com/hervehildenbrand/threatsage/pkg/memory"
	"github.com/hervehildenbrand/threatsage/pkg/metrics"
	"github.com/hervehildenbrand/threatsage/pkg/models"
	"github.com/hervehildenbrand/threatsage/pkg/report"
	"github.com/hervehildenbrand/threatsage/pkg/scenarios"
)

// reportThreshold is the score above which a report is always written.
const reportThreshold = 50

const statsInterval = 30 * time.Second

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := newPipeline(ctx, cfg)
	defer p.Close()

	result := p.analyzer.Analyze(ctx, strings.Join(args, " "))
	printResult(cmd.OutOrStdout(), result)
	maybeWriteReport(cmd, cfg, result)
	return nil
}

func maybeWriteReport(cmd *cobra.Command, cfg config.Config, result models.AnalysisResult) {
	if result.Insufficient || result.Canceled || (!writeReport && result.ThreatScore <= reportThreshold) {
		return
	}
	path, err := report.Write(cfg.ReportsDir, result)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.ReportsDir).Msg("Failed to write incident report")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.FeedURL == "" {
		return fmt.Errorf("feed URL required: use --feed or feed.url")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPipeline(ctx, cfg)
	defer p.Close()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var archive *database.IncidentWriter
	if cfg.DatabaseURL != "" {
		archive, err = database.NewIncidentWriter(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Database connection failed, incidents will not be archived")
		} else {
			archive.Start()
			p.analyzer.SetArchive(archive)
			defer archive.Stop()
		}
	}

	alerts := make(chan feed.Alert, 1000)
	client := feed.NewClient(cfg.FeedURL, alerts)
	client.Start()
	defer client.Stop()

	log.Info().Str("feed", cfg.FeedURL).Msg("ThreatSage watching alert feed")

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var analyzed, reported uint64
	for {
		select {
		case <-ctx.Done():
			log.Info().
				Uint64("analyzed", analyzed).
				Uint64("reports", reported).
				Msg("Shutting down")
			return nil

		case alert := <-alerts:
			if ctx.Err() != nil {
				continue
			}
			result := p.analyzer.Analyze(ctx, alert.Text)
			if result.Canceled {
				continue
			}
			analyzed++
			if result.Insufficient {
				continue
			}
			printResult(cmd.OutOrStdout(), result)
			if result.ThreatScore > reportThreshold {
				if path, err := report.Write(cfg.ReportsDir, result); err != nil {
					log.Error().Err(err).Msg("Failed to write incident report")
				} else {
					reported++
					log.Info().Str("path", path).Str("source", alert.Source).Msg("Incident report written")
				}
			}

		case <-ticker.C:
			event := log.Info().Uint64("analyzed", analyzed).Fields(client.Stats())
			if archive != nil {
				event = event.Interface("archive", archive.Stats())
			}
			event.Msg("STATS")
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	mem := memory.Open(cfg.MemoryPath)
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		printHistory(out, args[0], mem.HistoryFor(args[0]))
		return nil
	}

	printIncidents(out, mem.Incidents())
	if ips := mem.KnownIPs(); len(ips) > 0 {
		fmt.Fprintf(out, "\nKnown IPs: %s\n", strings.Join(ips, ", "))
	}
	return nil
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	list, err := scenarios.Load(scenariosFile)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		s, ok := scenarios.Find(list, args[0])
		if !ok {
			return fmt.Errorf("unknown scenario %q", args[0])
		}
		list = []scenarios.Scenario{s}
	}

	out := cmd.OutOrStdout()
	if listOnly {
		for _, s := range list {
			labelColor.Fprintf(out, "%-22s ", s.Name)
			fmt.Fprintln(out, s.Description)
		}
		return nil
	}

	ctx := cmd.Context()
	p := newPipeline(ctx, cfg)
	defer p.Close()

	for _, s := range list {
		headerColor.Fprintf(out, "\n### Scenario: %s\n", s.Name)
		fmt.Fprintf(out, "Alert: %s\n\n", s.Alert)
		result := p.analyzer.Analyze(ctx, s.Alert)
		printResult(out, result)
		maybeWriteReport(cmd, cfg, result)
	}
	return nil
}
