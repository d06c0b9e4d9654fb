// Command catalog-ingest loads supplier PDF price lists into the parts catalogue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/parts-catalog-ingest/pkg/config"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "catalog-ingest",
		Short:         "Extract supplier PDF price lists into the parts catalogue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cfg.Observability.LogLevel)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.AddCommand(
		newRunCmd(a),
		newParseCmd(a),
		newScheduleCmd(a),
		newLayoutsCmd(a),
		newSignCmd(a),
		newUploadCmd(a),
	)
	return root
}

// newLogger writes JSON logs to stderr so stdout stays free for exports.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) dependencies(ctx context.Context) (*Dependencies, error) {
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return InitDependencies(ctx, a.cfg, a.logger)
}
