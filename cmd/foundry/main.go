package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psu6810110402/gemini-foundry/internal/config"
	"github.com/psu6810110402/gemini-foundry/internal/store"
)

const defaultConfigContent = `llm:
  provider: "openai"
  api_key: ""
  base_url: ""
  model: "gpt-4o"
  language: "EN"
  history_tokens: 16000
  timeout: 120s
  retry:
    max_attempts: 3
    base_delay: 2s

server:
  host: "127.0.0.1"
  port: 3000
  cors_origin: ""
  rate_limit:
    max_requests: 20
    window: 1m

throttle:
  max_requests: 3
  window: 60s
  cooldown: 60s

client:
  server_url: "http://127.0.0.1:3000"
  token: ""

auth:
  jwt_secret: ""
  admin_email: ""

sanitize:
  headers:
    - Authorization
    - Cookie
    - Set-Cookie
    - X-Api-Key
    - X-Goog-Api-Key
  body_fields:
    - password
    - secret
    - token
    - api_key
    - access_token
    - refresh_token
    - image
  replacement: "***REDACTED***"

log:
  level: "info"
  format: "text"
`

type rootOptions struct {
	cfgPath string
	verbose bool
	debug   bool
}

// load reads the config and builds the logger the command should use.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log, o.verbose, o.debug, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, verbose, debug bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "foundry",
		Short:         "Gemini Foundry, an AI co-founder for startup ideas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newAskCmd(opts))
	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newSessionsCmd(opts))
	root.AddCommand(newUsageCmd(opts))
	root.AddCommand(newTokenCmd(opts))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.foundry directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := config.DefaultDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o600); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "foundry.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please update llm.api_key in", cfgFile)
			return nil
		},
	}
}
