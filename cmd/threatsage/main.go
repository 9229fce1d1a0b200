// threatsage - AI-assisted security alert triage.
//
// Extracts indicators from free-text alerts, enriches IP addresses with
// geolocation and reputation data, scores the threat against incident
// history and produces an analyst-facing recommendation.
//
// Usage:
//
//	threatsage analyze "Multiple failed SSH login attempts from 45.13.22.98"
//	threatsage analyze 185.107.56.21 --report
//	threatsage watch --feed ws://localhost:8080/alerts
//	threatsage history [ip]
//	threatsage scenarios [name]
//
// Environment variables (alternative to the config file):
//
//	THREATSAGE_CACHE_REDIS_URL  - Redis URL for the shared enrichment cache
//	THREATSAGE_DATABASE_URL     - PostgreSQL URL for the incident archive
//	THREATSAGE_NARRATIVE_BASE_URL - text generation service
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hervehildenbrand/threatsage/pkg/config"
)

var (
	cfgFile       string
	writeReport   bool
	scenariosFile string
	listOnly      bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "threatsage",
	Short: "Security alert triage with IP intelligence and threat scoring",
	Long: `ThreatSage turns free-text security alerts into scored, explained incidents.

Pipeline:
  - Extraction: IP addresses, usernames, times and action keywords
  - Enrichment: geolocation service plus local reputation table, cached
  - Scoring: 0-100 threat score including prior sightings of the IP
  - Narrative: generated recommendation with a templated fallback
  - Memory: per-IP verdict history and a global incident log`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <alert text | ip>",
	Short: "Analyze a single alert or IP address",
	Long: `Analyze one alert. Input that is a bare IP address is enriched directly.
A Markdown incident report is written when the score exceeds 50 or --report is set.

Examples:
  threatsage analyze "Admin user john.doe logged in from 185.107.56.21 at 3:44 AM"
  threatsage analyze 45.13.22.98 --report`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyze alerts streamed from a WebSocket feed",
	Long: `Connect to an alert feed and analyze every alert as it arrives.
Incidents are archived to PostgreSQL when database.url is set and
Prometheus metrics are served when metrics.addr is set.

Examples:
  threatsage watch --feed ws://localhost:8080/alerts
  threatsage watch --feed ws://siem:8080/alerts --metrics :9090`,
	RunE: runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history [ip]",
	Short: "Show the incident log or the verdict history of one IP",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios [name]",
	Short: "Run the sample alert scenarios",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScenarios,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ThreatSage %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("memory", "", "incident memory file")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("memory.path", rootCmd.PersistentFlags().Lookup("memory"))

	analyzeCmd.Flags().BoolVar(&writeReport, "report", false, "always write a Markdown incident report")
	scenariosCmd.Flags().BoolVar(&writeReport, "report", false, "always write a Markdown incident report")
	scenariosCmd.Flags().StringVar(&scenariosFile, "file", "", "YAML file with scenarios (default: built-in set)")
	scenariosCmd.Flags().BoolVar(&listOnly, "list", false, "list scenarios without running them")

	watchCmd.Flags().String("feed", "", "WebSocket alert feed URL")
	watchCmd.Flags().String("metrics", "", "address for the Prometheus /metrics endpoint")
	watchCmd.Flags().String("database", "", "PostgreSQL URL for the incident archive")
	viper.BindPFlag("feed.url", watchCmd.Flags().Lookup("feed"))
	viper.BindPFlag("metrics.addr", watchCmd.Flags().Lookup("metrics"))
	viper.BindPFlag("database.url", watchCmd.Flags().Lookup("database"))

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
