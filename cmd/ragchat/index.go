package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/ragchat/internal/logger"
)

func indexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index documents present in the document directory but not yet indexed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.FromContext(ctx).Error("closing index", "error", err)
				}
			}()

			indexed, err := a.Manager.Reconcile(ctx)
			for _, name := range indexed {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return err
		},
	}
}
