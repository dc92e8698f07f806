package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zen-systems/groundchat/pkg/adapter"
	"github.com/zen-systems/groundchat/pkg/archive"
	"github.com/zen-systems/groundchat/pkg/bot"
	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/config"
	"github.com/zen-systems/groundchat/pkg/conversation"
)

// botNames lists the provider strategies in display order.
var botNames = []string{"openai", "openai-fc", "google", "anthropic", "mock"}

var (
	configFile string
	logFormat  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundchat",
		Short: "Grounded music recommendation chat with citation checking",
		Long: `Groundchat asks an LLM for music recommendations grounded on a local
catalog, resolves which catalog records the reply cites, and suppresses
replies that quote something the catalog cannot back.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to settings file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(similarityCmd())
	rootCmd.AddCommand(botsCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(archiveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the settings and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, _ := cfg.Level()
	slog.SetDefault(newLogger(os.Stderr, logFormat, level))
	return cfg, nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// createAdapters builds the provider strategies named in names. Every
// adapter is wrapped with its configured rate limit.
func createAdapters(ctx context.Context, cfg *config.Config, names []string) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	for _, name := range names {
		if !cfg.HasProvider(name) {
			return nil, fmt.Errorf("bot %q is not configured", name)
		}

		var (
			a   adapter.Adapter
			rpm int
			err error
		)
		switch name {
		case "openai":
			a, err = adapter.NewOpenAIAdapter(openAIConfig(cfg, cfg.OpenAI.LLMName))
			rpm = cfg.OpenAI.RequestsPerMinute
		case "openai-fc":
			a, err = adapter.NewOpenAIFunctionsAdapter(openAIConfig(cfg, cfg.OpenAI.LLMFCName))
			rpm = cfg.OpenAI.RequestsPerMinute
		case "google":
			a, err = adapter.NewGoogleAdapter(ctx, adapter.GoogleConfig{
				APIKey:               cfg.Google.APIKey,
				Project:              cfg.Google.ProjectID,
				Location:             cfg.Google.Location,
				BaseURL:              cfg.Google.BaseURL,
				TextModel:            cfg.Google.TextLLMName,
				ChatModel:            cfg.Google.ChatLLMName,
				TemperatureLLM:       cfg.Google.TemperatureLLM,
				TemperatureFunctions: cfg.Google.TemperatureFunctions,
			})
			rpm = cfg.Google.RequestsPerMinute
		case "anthropic":
			a, err = adapter.NewAnthropicAdapter(adapter.AnthropicConfig{
				APIKey:               cfg.Anthropic.APIKey,
				BaseURL:              cfg.Anthropic.BaseURL,
				Model:                cfg.Anthropic.LLMName,
				MaxTokens:            cfg.Anthropic.MaxTokens,
				TemperatureLLM:       cfg.Anthropic.TemperatureLLM,
				TemperatureFunctions: cfg.Anthropic.TemperatureFunctions,
			})
			rpm = cfg.Anthropic.RequestsPerMinute
		case "mock":
			a = adapter.NewMockAdapter()
		default:
			return nil, fmt.Errorf("unknown bot %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", name, err)
		}
		adapters[name] = adapter.WithRateLimit(a, rpm)
	}

	return adapters, nil
}

func openAIConfig(cfg *config.Config, model string) adapter.OpenAIConfig {
	return adapter.OpenAIConfig{
		APIType:              cfg.OpenAI.APIType,
		APIKey:               cfg.OpenAI.APIKey,
		APIBase:              cfg.OpenAI.APIBase,
		APIVersion:           cfg.OpenAI.APIVersion,
		DeploymentID:         cfg.OpenAI.DeploymentID,
		Model:                model,
		TemperatureLLM:       cfg.OpenAI.TemperatureLLM,
		TemperatureFunctions: cfg.OpenAI.TemperatureFunctions,
	}
}

// selectBots returns the requested bot names, or every configured
// provider when none was requested. mock is used only as a last resort.
func selectBots(cfg *config.Config, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	var names []string
	for _, name := range botNames {
		if name != "mock" && cfg.HasProvider(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = []string{"mock"}
	}
	return names
}

func newBot(cfg *config.Config, a adapter.Adapter, src catalog.Source) (*bot.Bot, error) {
	return bot.New(a, src, cfg.Grounding,
		bot.WithStagingPolicy(cfg.StagingPolicy(a.Name())),
		bot.WithLogger(slog.Default()),
	)
}

// openCatalog opens a SQLite catalog for .db/.sqlite paths and a JSON
// catalog otherwise.
func openCatalog(path string, limit int) (catalog.Source, func() error, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("no catalog configured (grounding.database_path)")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		src, err := catalog.OpenSQLite(path, catalog.WithRowLimit(limit))
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		src, err := catalog.OpenFile(path, catalog.WithLimit(limit), catalog.WithFileLogger(slog.Default()))
		if err != nil {
			return nil, nil, err
		}
		return src, func() error { return nil }, nil
	}
}

// saveSessions writes the export file and/or archives the sessions.
func saveSessions(cmd *cobra.Command, cfg *config.Config, sessions []*conversation.Session, exportPath string, toArchive bool) error {
	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		if err := conversation.ExportSessions(f, sessions); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d sessions to %s\n", len(sessions), exportPath)
	}
	if toArchive {
		store, err := archive.NewStore(filepath.Join(cfg.ConfigDir, "archive"))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		ref, err := store.StoreSessions(sessions)
		if err != nil {
			return fmt.Errorf("failed to archive sessions: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Archived %d sessions as %s\n", ref.Sessions, ref.SHA256)
	}
	return nil
}
