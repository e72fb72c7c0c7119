// internal/commands/rag.go
package examrag

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/examrag/internal/chain"
	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/util"
)

// ragCmd groups RAG-related CLI commands.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "RAG utilities",
}

// ragPreviewCmd previews retrieval and context assembly for a query
// without calling the chat model.
var ragPreviewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview retrieval and context assembly",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("query is required")
		}

		ctx := cmdContext(cmd)
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		status := func(format string, args ...any) {
			msg := fmt.Sprintf(format, args...)
			log.Print(msg)
			fmt.Fprintln(out, msg)
		}

		opts := a.searchOptions()
		if t, _ := cmd.Flags().GetString("search"); t != "" {
			opts.Type = t
		}
		if k, _ := cmd.Flags().GetInt("k"); k > 0 {
			opts.K = k
			if opts.FetchK < k {
				opts.FetchK = k
			}
		}

		status("[RAG] Preview query: %s", query)
		status("[RAG] store: %s (%s)", a.cfg.DBPath, a.store.State())
		status("[RAG] embedding model: %s", a.cfg.EmbeddingModel)
		status("[RAG] search: %s k=%d fetchK=%d lambda=%.2f", opts.Type, opts.K, opts.FetchK, opts.Lambda)

		if standalone, _ := cmd.Flags().GetBool("standalone"); standalone {
			q, err := a.reformulator.Reformulate(ctx, query, nil)
			if err != nil {
				return err
			}
			status("[RAG] standalone query: %s (language: %s)", q.Query, q.Language)
			query = q.Query
		}

		if !a.store.Available() {
			if err := a.store.Reinitialize(ctx); err != nil {
				return fmt.Errorf("%s: %w", chain.UnavailableMessage, err)
			}
		}
		results, err := a.store.Search(ctx, query, opts)
		if err != nil {
			return err
		}

		width, _ := cmd.Flags().GetInt("width")
		status("[RAG] chunks: %d", len(results))
		for i, r := range results {
			status("[RAG] chunk %d score=%.6f id=%s doc=%s offset=%d", i+1, r.Score, r.Chunk.ID, r.Chunk.Metadata.Filename, r.Chunk.Metadata.StartOffset)
			status("[RAG] chunk %d text: %s", i+1, util.TruncateRunes(util.OneLine(r.Chunk.Text), width))
		}
		if context := chain.FormatContext(results); context != "" {
			status("[RAG] context:\n%s", context)
		}
		return nil
	},
}

func init() {
	ragPreviewCmd.Flags().String("search", "", "override searchType ("+docstore.SearchMMR+" or "+docstore.SearchSimilarity+")")
	ragPreviewCmd.Flags().Int("k", 0, "override the number of chunks returned")
	ragPreviewCmd.Flags().Int("width", 240, "truncate chunk text to this many characters (0 = full)")
	ragPreviewCmd.Flags().Bool("standalone", false, "reformulate the query with the chat model first")
	ragCmd.AddCommand(ragPreviewCmd)
	rootCmd.AddCommand(ragCmd)
}
