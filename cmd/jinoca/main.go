package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jinoca/internal/bot"
	"jinoca/internal/bus"
	"jinoca/internal/config"
	"jinoca/internal/history"
	"jinoca/internal/provider"
	"jinoca/internal/status"
	"jinoca/internal/transport"
	"jinoca/internal/web"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "jinoca",
		Short:   "Jinoca: a WhatsApp persona chatbot",
		Long:    "Jinoca relays WhatsApp messages to a chat-completion API and an image-generation API, in character.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.jinoca/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults plus
// environment variables when no file exists.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using environment", "path", cfgPath, "err", err)
		return config.FromEnv()
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Defaults()
			cfg.OpenRouter.APIKey = "${OPENROUTER_API_KEY}"
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the status server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg.General.LogLevel)

	if cfg.OpenRouter.APIKey == "" {
		logger.Warn("openRouter.apiKey is empty, completion calls will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	histStore, err := history.NewStore(cfg.History.DBPath, logger)
	if err != nil {
		return err
	}
	defer histStore.Close()

	httpClient := provider.SharedHTTPClient(30 * time.Second)
	completer := provider.NewOpenRouter(provider.OpenRouterConfig{
		APIKey:  cfg.OpenRouter.APIKey,
		APIBase: cfg.OpenRouter.APIBase,
		Model:   cfg.OpenRouter.Model,
		Client:  httpClient,
		Logger:  logger,
	})
	images := provider.NewImageGen(provider.ImageGenConfig{
		BaseURL: cfg.ImageGen.BaseURL,
		Client:  httpClient,
		Logger:  logger,
	})

	wa := transport.New(transport.Config{
		DBPath: cfg.WhatsApp.DBPath,
		Logger: logger,
	})
	defer wa.Stop()

	statusStore := status.New(status.StoreConfig{
		ReconnectDelay: time.Duration(cfg.WhatsApp.ReconnectDelaySeconds) * time.Second,
		Reconnect: func() {
			if err := wa.Reconnect(context.Background()); err != nil {
				logger.Error("reconnect failed", "err", err)
			}
		},
		Logger: logger,
	})

	builder := bot.NewContextBuilder(bot.ContextBuilderConfig{
		History: histStore,
		Window:  cfg.History.WindowSize,
		Logger:  logger,
	})
	orchestrator := bot.NewOrchestrator(bot.OrchestratorConfig{
		Transport: wa,
		Completer: completer,
		Images:    images,
		Builder:   builder,
		History:   histStore,
		Logger:    logger,
	})

	go statusStore.Run(ctx, messageBus.Lifecycle())
	go orchestrator.Run(ctx, messageBus.Messages())

	if err := wa.Start(ctx, messageBus); err != nil {
		// Keep serving the status page so the failure is visible.
		logger.Error("whatsapp transport failed to start", "err", err)
		statusStore.Fail(err.Error())
	}

	srv := web.NewServer(web.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		Store:  statusStore,
		Logger: logger,
	})
	return srv.Start(ctx)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and remote API reachability",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("✗ config: %v\n", err)
		return err
	}
	fmt.Println("✓ config valid")

	if _, err := url.ParseRequestURI(cfg.ImageGen.BaseURL); err != nil {
		fmt.Printf("✗ imageGen.baseUrl: %v\n", err)
	} else {
		fmt.Println("✓ imageGen.baseUrl parses")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	completer := provider.NewOpenRouter(provider.OpenRouterConfig{
		APIKey:  cfg.OpenRouter.APIKey,
		APIBase: cfg.OpenRouter.APIBase,
		Model:   cfg.OpenRouter.Model,
		Logger:  logger,
	})
	if err := completer.Healthy(ctx); err != nil {
		fmt.Printf("✗ openrouter: %v\n", err)
	} else {
		fmt.Println("✓ openrouter reachable")
	}

	histStore, err := history.NewStore(cfg.History.DBPath, logger)
	if err != nil {
		fmt.Printf("✗ history db: %v\n", err)
		return nil
	}
	histStore.Close()
	fmt.Println("✓ history db opens")
	return nil
}

func applyLogLevel(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
