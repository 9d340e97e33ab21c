package cmd

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	fileFlag string

	ingestCmd = &cobra.Command{
		Use:   "ingest [text]",
		Short: "Store text as episodic memory and update the knowledge graphs",
		Long:  longIngest,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			lines, err := ingestLines(args)

			if err != nil {
				return err
			}

			sess, err := openSession(ctx)

			if err != nil {
				return err
			}

			defer func() {
				if closeErr := sess.close(ctx); err == nil {
					err = closeErr
				}
			}()

			type ingested struct {
				ID           string   `json:"id"`
				Task         string   `json:"task_type"`
				Significance float64  `json:"significance"`
				Entities     []string `json:"entities,omitempty"`
			}

			out := make([]ingested, 0, len(lines))

			for _, line := range lines {
				chunk, extraction, err := sess.pipeline.Ingest(ctx, line, nil)

				if err != nil {
					return err
				}

				item := ingested{ID: chunk.ID, Task: string(chunk.TaskType), Significance: chunk.SignificanceScore}

				for _, node := range extraction.Nodes {
					item.Entities = append(item.Entities, node.ID)
				}

				out = append(out, item)
			}

			return printJSON(out)
		},
	}
)

func init() {
	rootCmd.AddCommand(ingestCmd)
	addSessionFlags(ingestCmd)

	ingestCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "ingest every non-blank line of a file")
}

func ingestLines(args []string) ([]string, error) {
	var lines []string

	if text := strings.TrimSpace(strings.Join(args, " ")); text != "" {
		lines = append(lines, text)
	}

	if fileFlag == "" {
		return lines, nil
	}

	fh, err := os.Open(fileFlag)

	if err != nil {
		return nil, err
	}

	defer fh.Close()

	scanner := bufio.NewScanner(fh)

	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	return lines, scanner.Err()
}

var longIngest = `
Store text as a new episodic memory. Entities and relations found in the text
are added to the procedural graph for technical content and to the semantic
graph otherwise.

Examples:
  # Remember a single message
  recall ingest "My Python code has a bug"

  # Remember a file, one message per line, and keep it in a snapshot
  recall ingest --file notes.txt --restore --save
`
