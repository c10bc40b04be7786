package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/psu6810110402/gemini-foundry/internal/auth"
	"github.com/psu6810110402/gemini-foundry/internal/filter"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/provider"
	"github.com/psu6810110402/gemini-foundry/internal/retry"
	"github.com/psu6810110402/gemini-foundry/internal/server"
	"github.com/psu6810110402/gemini-foundry/internal/store"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{Use: "serve", Short: "Start HTTP service", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := opts.load(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		p, err := provider.NewProvider(provider.Config{
			Type:       provider.Type(cfg.LLM.Provider),
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.LLM.Timeout},
		})
		if err != nil {
			return err
		}
		gen, err := generator.NewService(p, generator.Options{
			Policy: retry.Policy{
				MaxAttempts: cfg.LLM.Retry.MaxAttempts,
				BaseDelay:   cfg.LLM.Retry.BaseDelay,
				Jitter:      true,
				Logger:      logger,
			},
			Language:      generator.ParseLanguage(cfg.LLM.Language),
			HistoryTokens: cfg.LLM.HistoryTokens,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		st, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		srv, err := server.New(cfg, st, gen, server.WithLogger(logger))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		logger.Info("server listening",
			"addr", addr,
			"provider", p.Name(),
			"model", p.Model(),
			"api_key", filter.Mask(cfg.LLM.APIKey, 4),
			"auth", cfg.Auth.JWTSecret != "",
			"db", cfg.Store.Path,
		)
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("server stopped")
		return nil
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var userID, email, role string
	var ttl time.Duration
	cmd := &cobra.Command{Use: "token", Short: "Issue a bearer token signed with auth.jwt_secret", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.AdminEmail)
		if !a.Enabled() {
			return errors.New("auth.jwt_secret is not configured")
		}
		if userID == "" {
			userID = uuid.NewString()
		} else if !filter.ValidUUID(userID) {
			return fmt.Errorf("user id must be a uuid: %s", userID)
		}
		if email != "" && !filter.ValidEmail(email) {
			return fmt.Errorf("invalid email: %s", email)
		}
		tok, err := a.Issue(auth.Identity{UserID: userID, Email: email, Role: role}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	}}
	cmd.Flags().StringVar(&userID, "user", "", "user id (uuid, random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
