package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/ragchat/internal/logger"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Answer a single prompt from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.FromContext(ctx).Error("closing index", "error", err)
				}
			}()

			prompt := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if !stream {
				answer, err := a.Agent.Query(ctx, prompt)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, answer)
				return nil
			}

			tokens, err := a.Agent.QueryStream(ctx, prompt)
			if err != nil {
				return err
			}
			for tok := range tokens {
				if tok.Error != nil {
					return tok.Error
				}
				fmt.Fprint(out, tok.Content)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "Print fragments as they arrive")
	return cmd
}
