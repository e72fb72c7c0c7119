// internal/commands/chat.go
package examrag

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwiater/examrag/cli"
)

var startGUI = cli.StartGUI

// chatCmd represents the 'chat' command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `The 'chat' command opens the terminal chat. Questions are answered from the indexed documents; ctrl+n starts a new chat and tab manages documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		sess := a.sessions.Create()
		defer a.sessions.Delete(sess.ID)

		return startGUI(ctx, sess, a.ingester, cli.Info{
			Provider: a.cfg.Provider,
			Model:    a.cfg.ChatModel,
			Search:   a.cfg.SearchType,
			Debug:    a.cfg.Debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
