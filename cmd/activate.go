package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/activation"
	"github.com/theapemachine/recall/pkg/memory"
)

var (
	cueFlags   []string
	energyFlag float64
	taskFlag   string
	depthFlag  int

	activateCmd = &cobra.Command{
		Use:   "activate",
		Short: "Spread activation from cue entities and print the active nodes",
		Long:  longActivate,
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

			var cues []activation.Cue

			for _, cue := range cueFlags {
				if cue = strings.TrimSpace(cue); cue != "" {
					cues = append(cues, activation.Cue{NodeID: cue, Energy: energyFlag})
				}
			}

			result, err := sess.pipeline.Engine().SpreadingActivation(ctx, cues, memory.ParseTaskType(taskFlag), depthFlag)

			if err != nil {
				return err
			}

			type active struct {
				ID     string  `json:"id"`
				Label  string  `json:"label"`
				Energy float64 `json:"energy"`
			}

			out := make([]active, 0, len(result.Nodes))

			for _, node := range result.Nodes {
				out = append(out, active{ID: node.Node.ID, Label: node.Node.Label, Energy: node.Energy})
			}

			return printJSON(map[string]any{
				"nodes":        out,
				"expanded":     result.Expanded,
				"episodes":     len(result.Episodes),
				"total_energy": result.TotalEnergy,
				"elapsed":      result.Elapsed.String(),
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(activateCmd)
	addSessionFlags(activateCmd)

	activateCmd.Flags().StringSliceVarP(&cueFlags, "cue", "c", nil, "cue node id, repeatable")
	activateCmd.Flags().Float64VarP(&energyFlag, "energy", "e", 1.0, "initial energy of each cue")
	activateCmd.Flags().StringVarP(&taskFlag, "task", "t", string(memory.TaskGeneralQA), "task type selecting the attention profile")
	activateCmd.Flags().IntVarP(&depthFlag, "depth", "d", 0, "traversal depth, 0 uses the configured depth")
}

var longActivate = `
Spread activation energy from one or more cue entities across the semantic
and procedural graphs and print every node that stays above the threshold.

Examples:
  # Activate from two cues using the latest snapshot
  recall activate --restore -c Python -c Bug -t technical_coding
`
