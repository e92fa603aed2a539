package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/captcha"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/credentials"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/executor"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/llm"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/pipeline"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/runloop"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/store"
)

const appDirName = "ai-agent-for-browser-fast"

type cliFlags struct {
	configPath  string
	credentials string
	source      string
	maxSignups  int
	headless    bool
	debug       bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:           "agent",
		Short:         "Signup-form-filling agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Configuration document path")
	cmd.Flags().StringVar(&flags.credentials, "credentials", "", "Inline JSON credentials overlay")
	cmd.Flags().StringVar(&flags.source, "source", "", "URL source: csv, meta, or database")
	cmd.Flags().IntVar(&flags.maxSignups, "max-signups", 0, "Override settings.max_signups")
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "Run the browser headless")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Verbose debug logging")

	return cmd
}

func run(ctx context.Context, flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger := newLogger(cfg.Settings.Debug || flags.debug)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	applyConfigEnv(cfg)

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	llmClient, err := llm.NewClientWithLogger(logger.With().Str("comp", "llm").Logger())
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		return fmt.Errorf("browser launcher: %w", err)
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, "")
	if err != nil {
		return fmt.Errorf("browser controller: %w", err)
	}
	defer ctrl.Close(ctx)

	costs := llm.NewCostAccumulator()
	planner := agent.NewPlanner(llmClient, costs)
	credEngine := credentials.New(cfg.Credentials, int64(len(cfg.Credentials.Email)))
	exec := executor.NewWithCredentials(ctrl, credEngine, logger.With().Str("comp", "executor").Logger())
	solver := captcha.NewSolverClient(cfg.APIKeys.Captcha, "")
	capHandler := captcha.NewWithLogger(ctrl, solver, logger.With().Str("comp", "captcha").Logger())

	loop := runloop.New(ctrl, planner, exec, capHandler, cfg.Settings.BatchPlanning, logger.With().Str("comp", "loop").Logger())

	source, urls, err := resolveURLs(st, cfg, logger)
	if err != nil {
		return fmt.Errorf("resolve urls: %w", err)
	}

	p := pipeline.New(loop, st, costs, cfg.Credentials, source, cfg.Settings.MaxSignups, logger.With().Str("comp", "pipeline").Logger())
	summary := p.Run(ctx, urls)
	p.PrintSummary(summary)

	return nil
}

func loadConfig(flags cliFlags) (*config.BotConfig, error) {
	var cfg *config.BotConfig
	var err error
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.BotConfig{}
		cfg.Settings.Validate()
	}

	if err := cfg.MergeCredentialsJSON(flags.credentials); err != nil {
		return nil, err
	}
	if flags.source != "" {
		cfg.Settings.DataSource = flags.source
	}
	if flags.maxSignups > 0 {
		cfg.Settings.MaxSignups = flags.maxSignups
	}
	if flags.headless {
		cfg.Settings.Headless = true
	}
	if flags.debug {
		cfg.Settings.Debug = true
	}
	cfg.Settings.Validate()
	return cfg, nil
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// applyConfigEnv bridges config-document settings the LLM transport
// only reads from the environment, the same way AGENT_HEADLESS already
// controls browser.NewLauncher.
func applyConfigEnv(cfg *config.BotConfig) {
	if cfg.APIKeys.OpenAI != "" {
		setEnvIfAbsent("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	}
	if cfg.Settings.LLMModel != "" {
		setEnvIfAbsent("OPENAI_MODEL", cfg.Settings.LLMModel)
		setEnvIfAbsent("ANTHROPIC_MODEL", cfg.Settings.LLMModel)
	}
	if cfg.Settings.Headless {
		setEnvIfAbsent("AGENT_HEADLESS", "true")
	}
}

func setEnvIfAbsent(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

func appDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, appDirName)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", err
	}
	return full, nil
}

func openStore() (*store.Store, error) {
	dir, err := appDataDir()
	if err != nil {
		return nil, err
	}
	return store.Open(filepath.Join(dir, "agent.db"))
}

// resolveURLs decides the effective pipeline.Source and the URL list
// for this run. URL discovery itself (the ad-library scraper, the CSV
// loader's field mapping) is an external collaborator; csv here is a
// single-column file of URLs, and meta immediately drains whatever the
// external scraper already enqueued, logging the same
// DATASOURCE_CHANGE token the distilled spec names for that switch.
func resolveURLs(st *store.Store, cfg *config.BotConfig, logger zerolog.Logger) (pipeline.Source, []string, error) {
	switch cfg.Settings.DataSource {
	case "csv":
		urls, err := readCSVURLs(cfg.Settings.CSVPath)
		return pipeline.SourceCSV, urls, err
	case "meta":
		logger.Info().Msg("DATASOURCE_CHANGE:database")
		urls, err := st.PendingScrapedURLs(cfg.Settings.AdLimit)
		return pipeline.SourceQueue, urls, err
	default:
		urls, err := st.PendingScrapedURLs(cfg.Settings.AdLimit)
		return pipeline.SourceQueue, urls, err
	}
}

func readCSVURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var urls []string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if len(record) == 0 {
			continue
		}
		urls = append(urls, record[0])
	}
	return urls, nil
}
