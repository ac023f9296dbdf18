package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"glowlogy/cmd/internal/app"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "glowlogy",
		Short: "Glowlogy booking server and operator tools",
		Long: `glowlogy serves the booking, intake and catalog API together with the
cache invalidation feed. Configuration comes from GLOWLOGY_* environment
variables. Without a subcommand it runs the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.AddCommand(serveCmd, cacheCmd, slotsCmd, bookingCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return app.Serve(ctx, cfg, log)
}

// withApp builds a fully wired App for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	// Operator commands only log problems.
	log := app.NewLogger("warn", cfg.LogFormat)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
