package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/render"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load random videos from a running server and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if err := setupLogger(cmd.ErrOrStderr(), lo.Must(flags.GetString("log-level")), false); err != nil {
				return err
			}

			policy := loader.Policy{
				MaxRetries: lo.Must(flags.GetInt("max-retries")),
				Delay:      lo.Must(flags.GetDuration("retry-delay")),
			}
			if err := policy.Validate(); err != nil {
				return err
			}

			count := lo.Must(flags.GetInt("count"))
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fetcher := loader.NewHTTPFetcher(lo.Must(flags.GetString("url")))
			return runWatch(ctx, cmd.OutOrStdout(), fetcher, policy, count)
		},
	}

	cmd.Flags().String("url", "http://localhost:8080", "Base URL of a reelroll server")
	cmd.Flags().IntP("count", "n", 1, "Number of videos to load")
	cmd.Flags().Int("max-retries", loader.DefaultMaxRetries, "Retries after a failed fetch")
	cmd.Flags().Duration("retry-delay", loader.DefaultDelay, "Delay between fetch attempts")
	cmd.Flags().String("log-level", "WARN", "Logging level (DEBUG, INFO, WARN, ERROR)")
	return cmd
}

// terminalView prints every state the widget would display.
type terminalView struct {
	w io.Writer
}

func (v terminalView) Render(state loader.State) {
	_, _ = fmt.Fprintln(v.w, render.Text(state))
}

func (v terminalView) SetControl(loader.Control) {}

func runWatch(ctx context.Context, w io.Writer, fetcher loader.Fetcher, policy loader.Policy, count int) error {
	session := loader.NewSession(loader.New(fetcher, policy), terminalView{w: w})
	defer session.Close()

	failed := 0
	for i := 0; i < count; i++ {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		result := <-session.Trigger(ctx)
		if errors.Is(result.Err, loader.ErrCanceled) {
			return ctx.Err()
		}
		if result.Err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed to load", failed, count)
	}
	return nil
}

var _ loader.View = terminalView{}
