// Package main runs an autopilot engagement session: it launches a browser,
// wires the inference backends and the engagement core, and browses the feed
// until the configured session duration elapses or a signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/browser"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/config"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/inference"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/metrics"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/session"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	Duration    time.Duration
	Headless    bool
	MetricsAddr string
	LogLevel    string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("autopilot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Session failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to session configuration file (YAML)")
	flag.DurationVar(&cli.Duration, "duration", 0, "Override session duration (0 uses the config value)")
	flag.BoolVar(&cli.Headless, "headless", true, "Run the browser without a visible window")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flag.StringVar(&cli.LogLevel, "log-level", "", "Override log level: debug, info, warn, error")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Autopilot - Human-Paced Feed Engagement\n\n")
		fmt.Fprintf(os.Stderr, "Usage: autopilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a 30-minute session from a config file\n")
		fmt.Fprintf(os.Stderr, "  autopilot -config session.yaml -duration 30m\n\n")
		fmt.Fprintf(os.Stderr, "  # Watch the browser while debugging\n")
		fmt.Fprintf(os.Stderr, "  autopilot -config session.yaml -headless=false\n\n")
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("autopilot")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()
	logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	fmt.Printf("Session log: %s\n", logger.LogPath())

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	if cli.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		server := &http.Server{Addr: cli.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server failed: %v", err)
			}
		}()
		defer server.Close()
	}

	// Browser
	manager := browser.NewManager()
	if err := manager.Initialize(); err != nil {
		return err
	}
	defer manager.Shutdown()

	page, err := manager.NewSession(browser.SessionOptions{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
	})
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Navigate(cfg.Browser.BaseURL, browser.NavigateOptions{WaitUntil: "domcontentloaded"}); err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}

	// Inference
	router, err := buildRouter(cfg, logger, exporter)
	if err != nil {
		return err
	}

	// Target filtering
	filter, err := config.NewTargetFilter(cfg.Targets)
	if err != nil {
		return err
	}

	sess, err := session.New(cfg, session.Deps{
		Logger:    logger,
		Page:      page,
		Navigator: browser.NewFeedNavigator(page, cfg.Browser.BaseURL),
		Generator: router,
		Exporter:  exporter,
		Filter:    filter,
	})
	if err != nil {
		return err
	}
	defer sess.Shutdown()

	err = sess.Run(ctx)

	status := sess.Status()
	fmt.Println("\nSession summary:")
	for category, counts := range status.Engagements {
		fmt.Printf("  %-10s %s\n", category, counts)
	}
	return err
}

// loadConfig reads the YAML config and applies CLI overrides.
func loadConfig(cli *CLIConfig) (*config.SessionConfig, error) {
	var cfg *config.SessionConfig
	if cli.ConfigFile != "" {
		loaded, err := config.Load(cli.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if cli.Duration > 0 {
		cfg.Session.Duration = cli.Duration
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if !cli.Headless {
		cfg.Browser.Headless = false
	}

	return cfg, cfg.Validate()
}

// buildRouter assembles the inference stack: backends, circuit breaker, and
// per-backend request queues, with telemetry fed to the exporter.
func buildRouter(cfg *config.SessionConfig, logger *logging.Logger, exporter *metrics.Exporter) (*inference.Router, error) {
	var local inference.Backend
	if cfg.Inference.LocalEnabled {
		local = inference.NewLocalBackend(inference.BackendConfig{
			BaseURL: cfg.Inference.Local.BaseURL,
			Model:   cfg.Inference.Local.Model,
			Timeout: cfg.Inference.Local.Timeout,
		})
	}

	cloud := inference.NewCloudBackend(inference.BackendConfig{
		BaseURL: cfg.Inference.Cloud.BaseURL,
		APIKey:  cfg.Inference.Cloud.APIKey(),
		Model:   cfg.Inference.Cloud.Model,
		Timeout: cfg.Inference.Cloud.Timeout,
	})

	breaker := inference.NewCircuitBreaker(inference.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
		BackoffFactor:    cfg.Breaker.BackoffFactor,
		OnStateChange: func(endpoint string, to inference.CircuitState) {
			exporter.RecordCircuitTransition(endpoint, string(to))
		},
	}, logger)

	tok, err := inference.NewTokenizer()
	if err != nil {
		logger.Warnf("tokenizer unavailable, using heuristic counting: %v", err)
	}

	opts := []inference.RouterOption{
		inference.WithTokenizer(tok),
		inference.WithObserver(exporter),
	}
	if cfg.Inference.MaxConcurrent > 0 {
		opts = append(opts,
			inference.WithRequestQueue("local",
				inference.NewRequestQueue(cfg.Inference.MaxConcurrent, cfg.Inference.MaxWaiting)),
			inference.WithRequestQueue("cloud",
				inference.NewRequestQueue(cfg.Inference.MaxConcurrent*2, cfg.Inference.MaxWaiting*2)),
		)
	}

	router := inference.NewRouter(inference.RouterConfig{
		LocalEnabled:      cfg.Inference.LocalEnabled,
		PromptTokenBudget: cfg.Inference.PromptTokenBudget,
	}, local, cloud, breaker, logger, opts...)

	return router, nil
}
