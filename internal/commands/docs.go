// internal/commands/docs.go
package examrag

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/examrag/internal/ingest"
)

// docsCmd groups document management commands.
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Group commands for managing indexed documents",
	Long:  `The 'docs' command groups subcommands that add, delete, list and watch the documents answers are drawn from.`,
}

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printResult(out io.Writer, res ingest.Result) {
	if res.Success {
		okColor.Fprintf(out, "✓ %s (%d chunks)\n", res.Message, res.ChunksAdded)
		return
	}
	failColor.Fprintf(out, "✗ %s: %s\n", res.Filename, res.Message)
}

// expandPaths replaces directories with the supported files directly inside
// them.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && ingest.Supported(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

var docsAddCmd = &cobra.Command{
	Use:   "add <file|dir>...",
	Short: "Index documents (pdf, html, xlsx, txt, md)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandPaths(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no supported documents found")
		}

		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		succeeded := 0
		for _, f := range files {
			res := a.ingester.AddFile(ctx, f)
			printResult(out, res)
			if res.Success {
				succeeded++
			}
		}
		fmt.Fprintf(out, "%d of %d documents added\n", succeeded, len(files))
		if succeeded == 0 {
			return fmt.Errorf("no documents were added")
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Remove every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.ingester.DeleteDocument(ctx, args[0])
		if !res.Success {
			failColor.Fprintln(cmd.OutOrStdout(), res.Message)
			return fmt.Errorf("delete %s failed", args[0])
		}
		okColor.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		names := a.ingester.ListDocuments(ctx)
		if len(names) == 0 {
			fmt.Fprintln(out, "No documents indexed.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	},
}

var docsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document and chunk counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.ingester.Stats(ctx)
		out := cmd.OutOrStdout()
		if !st.Available {
			failColor.Fprintf(out, "Vector store unavailable: %s\n", st.Error)
			return nil
		}
		fmt.Fprintf(out, "Documents: %d\nChunks:    %d\n", st.TotalDocuments, st.TotalChunks)
		return nil
	},
}

var docsWatchCmd = &cobra.Command{
	Use:         "watch <dir>",
	Short:       "Index documents as they appear in a directory",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{consoleAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Watching %s (ctrl+c to stop)\n", args[0])
		return a.ingester.Watch(ctx, args[0], func(res ingest.Result) {
			printResult(out, res)
		})
	},
}

func init() {
	docsCmd.AddCommand(docsAddCmd, docsDeleteCmd, docsListCmd, docsStatsCmd, docsWatchCmd)
	rootCmd.AddCommand(docsCmd)
}
