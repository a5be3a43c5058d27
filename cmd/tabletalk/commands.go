package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/germanamz/tabletalk/pkg/agent"
	"github.com/germanamz/tabletalk/pkg/engine"
)

func askCmd(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			initMarkdownRenderer(cmd.OutOrStdout())

			sess := eng.NewSession(sessionID)
			res, err := sendTurn(cmd.Context(), eng, sess, strings.Join(args, " "), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(res.Answer))
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue (default: a new session)")
	return cmd
}

func chatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.openEngine(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			initMarkdownRenderer(cmd.OutOrStdout())
			return runChat(cmd.Context(), eng, eng.NewSession(sessionID), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue (default: a new session)")
	return cmd
}

// runChat reads one question per line until EOF or /exit. A failed turn is
// reported and the loop continues.
func runChat(ctx context.Context, eng *engine.Engine, sess *engine.Session, in io.Reader, out, errOut io.Writer) error {
	_, _ = fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("session %s (type /exit to quit)", sess.ID())))

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		res, err := sendTurn(ctx, eng, sess, line, errOut)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintln(errOut, renderError(err))
			continue
		}

		_, _ = fmt.Fprintln(out, renderAnswer(res.Answer))
	}
}

// sendTurn runs one turn while printing tool activity to errOut.
func sendTurn(ctx context.Context, eng *engine.Engine, sess *engine.Session, text string, errOut io.Writer) (agent.Result, error) {
	sub := eng.Events().Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.C {
			if ev.SessionID != sess.ID() {
				continue
			}
			if line := renderEvent(ev); line != "" {
				_, _ = fmt.Fprintln(errOut, line)
			}
		}
	}()

	res, err := sess.Send(ctx, text)

	eng.Events().Unsubscribe(sub)
	<-done

	if err != nil {
		return res, err
	}
	if res.PersistErr != nil {
		_, _ = fmt.Fprintln(errOut, renderWarning(res.PersistErr))
	}
	return res, nil
}

func toolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.openEngine(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			for _, d := range eng.Tools().Describe() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderDescriptor(d))
			}
			return nil
		},
	}
}

func serveMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the database and report tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.openEngine(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			err = eng.ServeMCP(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the persisted messages of a session, or list sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.openEngine(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			out := cmd.OutOrStdout()
			if sessionID == "" {
				return listSessions(cmd.Context(), eng, out)
			}

			initMarkdownRenderer(out)

			msgs, err := eng.History(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				_, _ = fmt.Fprintln(out, dimStyle.Render("no messages"))
				return nil
			}

			for _, m := range msgs {
				_, _ = fmt.Fprintln(out, renderMessage(m))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID (default: list sessions)")
	return cmd
}

func listSessions(ctx context.Context, eng *engine.Engine, out io.Writer) error {
	sessions, err := eng.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(out, dimStyle.Render("no sessions"))
		return nil
	}

	for _, s := range sessions {
		_, _ = fmt.Fprintln(out, renderSession(s))
	}
	return nil
}
