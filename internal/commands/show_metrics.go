// internal/commands/show_metrics.go
package examrag

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/examrag/internal/metrics"
)

// showMetricsCmd prints the per-model stats saved in metricsFile.
var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show recorded model latency and token metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		out := cmd.OutOrStdout()
		snapshot := metrics.NewAggregator(cfg.MetricsFile).Snapshot()
		if len(snapshot) == 0 {
			fmt.Fprintf(out, "No metrics recorded in %s.\n", cfg.MetricsFile)
			return nil
		}
		for _, m := range snapshot {
			fmt.Fprintf(out, "%s (updated %s)\n", m.ModelName, m.LastUpdatedUTC.Format("2006-01-02 15:04:05"))
			if m.Chat.TotalRequests > 0 {
				fmt.Fprintf(out, "  chat requests: %d\n", m.Chat.TotalRequests)
				fmt.Fprintf(out, "  ttft ms:       mean=%.0f sd=%.0f min=%.0f max=%.0f\n", m.Chat.TTFTMillis.Mean, m.Chat.TTFTMillis.StdDev(), m.Chat.TTFTMillis.Min, m.Chat.TTFTMillis.Max)
				fmt.Fprintf(out, "  total ms:      mean=%.0f max=%.0f\n", m.Chat.TotalDurationMillis.Mean, m.Chat.TotalDurationMillis.Max)
				fmt.Fprintf(out, "  tokens:        in=%.0f out=%.0f (mean)\n", m.Chat.InputTokens.Mean, m.Chat.OutputTokens.Mean)
			}
			if m.EmbedMillis.Count > 0 {
				fmt.Fprintf(out, "  embeddings:    %d calls, mean=%.0fms\n", m.EmbedMillis.Count, m.EmbedMillis.Mean)
			}
			if m.Errors > 0 {
				fmt.Fprintf(out, "  errors:        %d\n", m.Errors)
			}
		}
		return nil
	},
}

func init() {
	showCmd.AddCommand(showMetricsCmd)
}
