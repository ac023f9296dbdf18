package main

import (
	"fmt"
	"time"

	"glowlogy/cmd/internal/app"
	"glowlogy/cmd/internal/realtime"

	"github.com/spf13/cobra"
)

var (
	watchURL        string
	watchOrigin     string
	watchNamespaces []string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the response cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired and unreadable entries from the durable cache file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		n, err := app.PurgeCache(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]int{"removed": n})
		}
		fmt.Printf("Removed %d cache entries from %s\n", n, cfg.CachePath)
		return nil
	},
}

var cacheWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream cache invalidations from a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := watchURL
		if url == "" {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			url = app.FeedURL(cfg.HTTPAddr)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return realtime.Watch(ctx, url, watchOrigin, watchNamespaces, func(inv realtime.Invalidation) {
			if jsonOutput {
				_ = outputJSON(inv)
				return
			}
			fmt.Printf("%s  %s\n", inv.At.Local().Format(time.TimeOnly), inv.Namespace)
		})
	},
}

func init() {
	cacheWatchCmd.Flags().StringVar(&watchURL, "url", "", "feed URL (default derived from GLOWLOGY_HTTP_ADDR)")
	cacheWatchCmd.Flags().StringVar(&watchOrigin, "origin", "http://localhost", "Origin header sent with the upgrade")
	cacheWatchCmd.Flags().StringSliceVar(&watchNamespaces, "ns", nil, "namespaces to follow (default all)")
	cacheCmd.AddCommand(cachePurgeCmd, cacheWatchCmd)
}

