package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/internal/client"
	"github.com/psu6810110402/gemini-foundry/internal/config"
	"github.com/psu6810110402/gemini-foundry/internal/export"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/throttle"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

type persistFlags struct {
	serverURL string
	noSave    bool
}

func (f *persistFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.serverURL, "server", "", "server url (defaults to client.server_url)")
	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "do not store the conversation")
}

func newClient(cfg *config.Config, f *persistFlags) (*client.Client, error) {
	th, err := throttle.New(throttle.Config{
		MaxRequests: cfg.Throttle.MaxRequests,
		Window:      cfg.Throttle.Window,
		Cooldown:    cfg.Throttle.Cooldown,
	})
	if err != nil {
		return nil, err
	}
	url := cfg.Client.ServerURL
	if f != nil && f.serverURL != "" {
		url = f.serverURL
	}
	c := client.New(url, cfg.Client.Token, th)
	if f != nil && f.noSave {
		c.Store = nil
	}
	return c, nil
}

func parseKind(s string) (types.Kind, error) {
	k := types.Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range types.Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown persona %q, expected one of %v", s, types.Kinds)
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var pf persistFlags
	var file, problem, feedback, cost, stage string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <persona> [text...]",
		Short: "Ask one persona for a structured analysis",
		Long:  "Personas: investor, market, mvp, financial, pivot. Text is read from stdin when omitted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			if text == "" && file == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}
			in := client.Input{Text: text, Fields: map[string]string{
				"problem":        problem,
				"marketFeedback": feedback,
				"costStructure":  cost,
				"currentStage":   stage,
			}}
			if file != "" {
				if kind != types.KindInvestor {
					return errors.New("--file is only accepted by the investor persona")
				}
				if in.Attachment, err = attachment.Load(file); err != nil {
					return err
				}
			}

			c, err := newClient(cfg, &pf)
			if err != nil {
				return err
			}
			c.Logger = logger
			cv, err := c.Conversation(kind)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			reply, err := cv.Send(ctx, in, nil)
			if err != nil {
				return errors.New(apierr.UserMessage(err))
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reply.Analysis)
			}
			md, err := export.AnalysisMarkdown(reply.Analysis, time.Now())
			if err != nil {
				return err
			}
			printMarkdown(out, md)
			if id := cv.SessionID(); id != "" {
				fmt.Fprintln(out, "\nsaved as session", id)
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "image or PDF to attach (investor only)")
	cmd.Flags().StringVar(&problem, "problem", "", "pivot: the problem you face")
	cmd.Flags().StringVar(&feedback, "feedback", "", "pivot: market feedback so far")
	cmd.Flags().StringVar(&cost, "cost", "", "financial: cost structure")
	cmd.Flags().StringVar(&stage, "stage", "Idea", "financial: current stage (Idea, Pre-Seed, Seed, Series A)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON analysis")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var pf persistFlags
	var persona, file string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a persona in the terminal",
		Long:  "The first message gets a structured analysis; later messages stream answers. Type /pivot for pivot ideas, /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			kind, err := parseKind(persona)
			if err != nil {
				return err
			}
			c, err := newClient(cfg, &pf)
			if err != nil {
				return err
			}
			c.Logger = logger
			cv, err := c.Conversation(kind)
			if err != nil {
				return err
			}
			var att *attachment.Attachment
			if file != "" {
				if att, err = attachment.Load(file); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), c.Throttle, cv, att)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&persona, "persona", string(types.KindInvestor), "persona to talk to")
	cmd.Flags().StringVar(&file, "file", "", "image or PDF attached to the first message")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, th *throttle.Throttle, cv *client.Conversation, att *attachment.Attachment) error {
	fmt.Fprintf(out, "%s is listening. /pivot for pivot ideas, /quit to leave.\n", generator.PersonaName(cv.Kind()))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		printed := 0
		onChunk := func(_, buffer string) {
			fmt.Fprint(out, buffer[printed:])
			printed = len(buffer)
		}
		var (
			reply *client.Reply
			err   error
		)
		switch {
		case line == "/pivot":
			reply, err = cv.Pivot(ctx, onChunk)
		case len(cv.History()) == 0:
			reply, err = cv.Send(ctx, client.Input{Text: line, Attachment: att}, nil)
		default:
			reply, err = cv.Send(ctx, client.Input{Text: line}, onChunk)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if printed > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, "error:", apierr.UserMessage(err))
			if apierr.KindOf(err) == apierr.RateLimited && th != nil {
				waitCooldown(ctx, out, th)
			}
			continue
		}
		if reply.Analysis != nil {
			md, err := export.AnalysisMarkdown(reply.Analysis, time.Now())
			if err != nil {
				return err
			}
			printMarkdown(out, md)
			att = nil
		}
		fmt.Fprintln(out)
	}
}

// waitCooldown prints a countdown until th admits requests again.
func waitCooldown(ctx context.Context, out io.Writer, th *throttle.Throttle) {
	if !th.Throttled() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	th.Run(ctx, func(st throttle.State) {
		if st.Throttled {
			fmt.Fprintf(out, "\rcooling down: %2ds", st.RemainingSeconds)
			return
		}
		fmt.Fprintln(out, "\rready again.       ")
		cancel()
	})
}
