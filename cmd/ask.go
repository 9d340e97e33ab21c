package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	verboseFlag bool

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from recalled memory",
		Long:  longAsk,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			sess, err := openSession(ctx)

			if err != nil {
				return err
			}

			defer func() {
				if closeErr := sess.close(ctx); err == nil {
					err = closeErr
				}
			}()

			response, err := sess.pipeline.Respond(ctx, strings.Join(args, " "), nil)

			if err != nil {
				return err
			}

			if verboseFlag {
				return printJSON(map[string]any{
					"answer":    response.Answer,
					"task_type": response.Task,
					"items":     response.Recall.Items,
					"metrics":   response.Metrics,
				})
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), response.Answer)

			return err
		},
	}
)

func init() {
	rootCmd.AddCommand(askCmd)
	addSessionFlags(askCmd)

	askCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "print recalled items and turn metrics")
}

var longAsk = `
Run one conversational turn: the question is remembered, related memory is
recalled, and an answer is generated from it. Without a configured generator
the recalled memories are listed instead.

Examples:
  recall ask --restore --save "Why does my Docker build fail?"
`
