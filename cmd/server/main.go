// Package main provides the entry point for the nlq server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TFMV/nlq/cmd/server/config"
	"github.com/TFMV/nlq/cmd/server/server"
	"github.com/TFMV/nlq/pkg/infrastructure/metrics"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nlq",
	Short: "Natural-language query server",
	Long: `nlq translates natural-language questions into read-only document
queries with a language model, validates and sanitizes the generated plan,
and runs it against MongoDB.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nlq HTTP server",
	Long: `Start the nlq HTTP server with the specified configuration.

Example:
  nlq serve --config ./config.yaml
  nlq serve --address :8080 --mongo-uri mongodb://localhost:27017 --model llama3`,
	RunE: runServer,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample departments, employees and projects collections",
	Long: `Load the sample collections. Collections that already hold documents are
left alone unless --force is given.

Example:
  nlq seed --seed 7 --force`,
	RunE: runSeed,
}

func init() {
	defaults := config.DefaultConfig()

	// Flags shared by every command
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file path")
	pf.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	pf.String("mongo-uri", defaults.Mongo.URI, "MongoDB connection URI")
	pf.String("database", defaults.Mongo.Database, "MongoDB database name")

	// Serve flags
	sf := serveCmd.Flags()
	sf.String("address", defaults.Server.Address, "HTTP listen address")
	sf.String("model-provider", defaults.Model.Provider, "model provider (ollama, genai)")
	sf.String("model-url", defaults.Model.URL, "Ollama base URL")
	sf.String("model", defaults.Model.Name, "model name")
	sf.Bool("warmup", defaults.Model.Warmup, "warm up the model before serving")
	sf.Bool("strict-collections", defaults.Pipeline.StrictCollections, "fail plans that name a missing collection")
	sf.Bool("repair-json", defaults.Pipeline.RepairJSON, "attempt to repair malformed model JSON once")
	sf.Bool("auth", defaults.Auth.Enabled, "require a bearer JWT on /api routes")
	sf.Bool("metrics", defaults.Metrics.Enabled, "enable Prometheus metrics")
	sf.String("metrics-address", defaults.Metrics.Address, "metrics server address")
	sf.Bool("health", defaults.Health.Enabled, "enable the gRPC health server")
	sf.String("health-address", defaults.Health.Address, "gRPC health server address")
	sf.Duration("shutdown-timeout", defaults.Server.ShutdownTimeout, "graceful shutdown timeout")

	// Seed flags
	seedCmd.Flags().Int64("seed", 42, "random seed for generated fixtures")
	seedCmd.Flags().Bool("force", false, "replace collections that already hold documents")

	// Bind flags to viper
	bindings := []struct {
		key   string
		flags *pflag.FlagSet
		flag  string
	}{
		{"config", pf, "config"},
		{"log_level", pf, "log-level"},
		{"mongo.uri", pf, "mongo-uri"},
		{"mongo.database", pf, "database"},
		{"server.address", sf, "address"},
		{"model.provider", sf, "model-provider"},
		{"model.url", sf, "model-url"},
		{"model.name", sf, "model"},
		{"model.warmup", sf, "warmup"},
		{"pipeline.strict_collections", sf, "strict-collections"},
		{"pipeline.repair_json", sf, "repair-json"},
		{"auth.enabled", sf, "auth"},
		{"metrics.enabled", sf, "metrics"},
		{"metrics.address", sf, "metrics-address"},
		{"health.enabled", sf, "health"},
		{"health.address", sf, "health-address"},
		{"server.shutdown_timeout", sf, "shutdown-timeout"},
	}
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, b.flags.Lookup(b.flag)); err != nil {
			panic(fmt.Errorf("failed to bind flag %s: %w", b.flag, err))
		}
	}
	registerDefaults(defaults)

	viper.SetEnvPrefix("NLQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, seedCmd)

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nlq\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", buildDate)
		},
	})
}

// registerDefaults makes every key without a flag known to viper so it
// can be set from the environment or a config file.
func registerDefaults(d *config.Config) {
	viper.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	viper.SetDefault("mongo.connect_timeout", d.Mongo.ConnectTimeout)
	viper.SetDefault("mongo.query_timeout", d.Mongo.QueryTimeout)
	viper.SetDefault("model.api_key", d.Model.APIKey)
	viper.SetDefault("model.temperature", d.Model.Temperature)
	viper.SetDefault("model.warmup_timeout", d.Model.WarmupTimeout)
	viper.SetDefault("model.generate_timeout", d.Model.GenerateTimeout)
	viper.SetDefault("pipeline.max_input_length", d.Pipeline.MaxInputLength)
	viper.SetDefault("pipeline.forbidden_operators", d.Pipeline.ForbiddenOperators)
	viper.SetDefault("schema.sample_size", d.Schema.SampleSize)
	viper.SetDefault("schema.cache_ttl", d.Schema.CacheTTL)
	viper.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	viper.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	viper.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	viper.SetDefault("auth.jwt.secret", d.Auth.JWTAuth.Secret)
	viper.SetDefault("auth.jwt.issuer", d.Auth.JWTAuth.Issuer)
	viper.SetDefault("auth.jwt.audience", d.Auth.JWTAuth.Audience)
	viper.SetDefault("metrics.path", d.Metrics.Path)
	viper.SetDefault("health.interval", d.Health.Interval)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("model_provider", cfg.Model.Provider).
		Str("database", cfg.Mongo.Database).
		Msg("Starting nlq server")

	var metricsCollector metrics.Collector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewPrometheusCollector("nlq")
	} else {
		metricsCollector = metrics.NewNoOpCollector()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel)

	seed, _ := cmd.Flags().GetInt64("seed")
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := server.Seed(ctx, cfg, seed, force, logger, metrics.NewNoOpCollector())
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	names := make([]string, 0, len(report.Inserted))
	for name := range report.Inserted {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintf(out, "%-12s %d inserted\n", name, report.Inserted[name])
	}
	for _, name := range report.Skipped {
		fmt.Fprintf(out, "%-12s skipped (not empty, use --force)\n", name)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	// Load config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "nlq")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
