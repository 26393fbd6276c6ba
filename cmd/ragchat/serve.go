package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/ragchat/internal/logger"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, a, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.FromContext(ctx).Error("shutdown", "error", err)
				}
			}()

			if _, err := a.Manager.Index(ctx); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Server().Start(ctx) })
			if watch || a.Config.Storage.Watch {
				docSync, err := a.DocumentSync()
				if err != nil {
					return err
				}
				g.Go(func() error { return docSync.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Index files dropped into the document directory")
	return cmd
}
