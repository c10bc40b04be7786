package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/psu6810110402/gemini-foundry/internal/export"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Manage stored chat sessions"}
	cmd.AddCommand(newSessionsListCmd(opts))
	cmd.AddCommand(newSessionsShowCmd(opts))
	cmd.AddCommand(newSessionsDeleteCmd(opts))
	cmd.AddCommand(newSessionsExportCmd(opts))
	return cmd
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{Use: "list", Short: "List all sessions", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		c, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		sessions, err := c.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMODE\tUPDATED\tTITLE")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Mode, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
		}
		return tw.Flush()
	}}
}

func newSessionsShowCmd(opts *rootOptions) *cobra.Command {
	var session string
	cmd := &cobra.Command{Use: "show", Short: "Show session details", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		c, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		detail, err := c.GetSession(cmd.Context(), session)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s, %d messages)\n\n", detail.Session.Title, detail.Session.Mode, len(detail.Messages))
		for _, m := range detail.Messages {
			fmt.Fprintf(out, "[%s] %s\n%s\n\n", m.CreatedAt.Local().Format("15:04"), m.Role, m.Content)
		}
		return nil
	}}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSessionsDeleteCmd(opts *rootOptions) *cobra.Command {
	var session string
	cmd := &cobra.Command{Use: "delete", Short: "Delete session", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		c, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		if err := c.DeleteSession(cmd.Context(), session); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", session)
		return nil
	}}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSessionsExportCmd(opts *rootOptions) *cobra.Command {
	var session, format, dir string
	cmd := &cobra.Command{Use: "export", Short: "Export a session transcript", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		c, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		name, data, err := c.ExportSession(cmd.Context(), session, f)
		if err != nil {
			return err
		}
		if dir == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	}}
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or yaml")
	cmd.Flags().StringVar(&dir, "out", ".", "output directory, - for stdout")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{Use: "usage", Short: "Show token usage per endpoint", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := opts.load(cmd)
		if err != nil {
			return err
		}
		if cfg.Client.Token == "" {
			return errors.New("client.token is required to read usage")
		}
		c, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		summary, err := c.Usage(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENDPOINT\tCALLS\tTOKENS")
		total := 0
		for _, u := range summary {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", u.Endpoint, u.Calls, u.TokensUsed)
			total += u.TokensUsed
		}
		fmt.Fprintf(tw, "total\t\t%d\n", total)
		return tw.Flush()
	}}
}
