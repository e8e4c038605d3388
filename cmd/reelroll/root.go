package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reelroll/reelroll/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "reelroll",
		Short:        "Serve and watch random stock videos",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newWatchCmd())
	return root
}

// setupLogger installs the default slog logger. Servers log JSON; the
// terminal client logs text.
func setupLogger(w io.Writer, level string, json bool) error {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
