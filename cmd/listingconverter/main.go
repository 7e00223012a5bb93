package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ListingConverter/internal/app"
	"ListingConverter/internal/config"
	"ListingConverter/internal/logging"
	"ListingConverter/internal/usecase"
)

var (
	publish   bool
	sellPrice float64
	actor     string
)

var rootCmd = &cobra.Command{
	Use:          "listingconverter",
	Short:        "Convert marketplace product pages into listing drafts",
	Long:         `Scrapes product pages, checks brand policy, builds and prices listing drafts and optionally publishes them.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := config.Load()
		logger := logging.New(cfg.Logging.Level)

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Serve(ctx); err != nil {
			logger.Error("application stopped", "error", err)
			return err
		}
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert URL...",
	Short: "Convert URLs and print the progress stream",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := config.Load()
		logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level)

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		opts := usecase.ConvertOptions{ActorID: actor, Publish: publish}
		if cmd.Flags().Changed("sell-price") {
			opts.PriceOverride = &sellPrice
		}

		session, err := application.Coordinator().Open(ctx, usecase.BatchRequest{URLs: args, Options: opts})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		err = session.Forward(ctx, func(block string) error {
			_, err := fmt.Fprint(out, block)
			return err
		})
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if waitErr := application.Coordinator().Wait(waitCtx); waitErr != nil {
			logger.Warn("batch drain", "error", waitErr)
		}
		return err
	},
}

func init() {
	convertCmd.Flags().BoolVar(&publish, "publish", false, "Publish drafts to the marketplace")
	convertCmd.Flags().Float64Var(&sellPrice, "sell-price", 0, "Override the suggested sell price")
	convertCmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded in conversion history")

	rootCmd.AddCommand(serveCmd, convertCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
