package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tale555/dify-chat-webapp/internal/relay"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay in front of the Dify API",
		Long: `Run the HTTP relay. The relay holds the Dify API key and forwards
chat messages and image uploads from clients to the Dify API.

Required settings: relay api_key and app_id (DIFY_API_KEY and DIFY_APP_ID
are honoured).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Relay.Port = port
			}

			srv, err := relay.NewServer(cfg, relay.WithLogger(log.Logger.With().Str("component", "relay").Logger()))
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides relay.port)")
	return cmd
}
