package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Harshitk-cp/havi-knowledge/internal/extract"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var detectCmd = &cobra.Command{
	Use:   "detect [text]",
	Short: "Print the candidate facts the heuristic extractor finds in a message",
	Long:  "Runs the extractor only; nothing is stored. Reads the message from stdin when no text is given.",
	RunE:  runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(raw)
	}

	candidates, err := extract.NewHeuristic(zap.NewNop()).Extract(cmd.Context(), text, nil)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"fact_type":  c.FactType,
			"payload":    c.Payload,
			"confidence": c.Confidence,
			"source":     c.Source,
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
