// internal/commands/ask.go
package examrag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// askCmd answers a single question and streams the reply to stdout.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("question is required")
		}
		showSources, _ := cmd.Flags().GetBool("sources")

		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		sess := a.sessions.Create()
		defer a.sessions.Delete(sess.ID)

		out := cmd.OutOrStdout()
		run := sess.Ask(ctx, query)
		for fragment := range run.Fragments() {
			fmt.Fprint(out, fragment)
		}
		fmt.Fprintln(out)

		if showSources {
			dim := color.New(color.Faint)
			if standalone, language := run.Standalone(); standalone != "" {
				dim.Fprintf(out, "standalone query: %s (%s)\n", standalone, language)
			}
			for _, src := range run.Sources() {
				dim.Fprintf(out, "source: %s score=%.4f\n", src.Chunk.ID, src.Score)
			}
		}
		if err := run.Err(); err != nil && DebugEnabled() {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "run ended in %s: %v\n", run.Stage(), err)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("sources", false, "print the standalone query and retrieved chunks")
	rootCmd.AddCommand(askCmd)
}
