// internal/commands/serve.go
package examrag

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/server"
)

// serveCmd exposes sessions and document management over HTTP.
var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Serve the chat and document API over HTTP",
	Annotations: map[string]string{consoleAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.cfg.ServerAddr
		}
		logging.LogEvent("serving on %s (provider=%s model=%s store=%s)", addr, a.cfg.Provider, a.cfg.ChatModel, a.store.State())
		return server.New(a.sessions, a.ingester, server.WithMetrics(a.metrics)).Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (defaults to serverAddr from config)")
	rootCmd.AddCommand(serveCmd)
}
