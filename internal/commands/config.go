package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tale555/dify-chat-webapp/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Create or inspect the difychat configuration.

Settings are read from --config, ./difychat.toml or ~/.difychat/config.toml,
then overridden by ` + config.EnvPrefix + `* environment variables (for example
` + config.EnvPrefix + `RELAY_API_KEY) and DIFY_API_KEY, DIFY_APP_ID, DIFY_API_BASE_URL,
PORT and FRONTEND_URL.`,
	}

	cmd.AddCommand(newConfigInitCmd(g), newConfigShowCmd(g))
	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				p, err := config.GetConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.InitConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			rows := [][2]string{
				{"relay.port", fmt.Sprint(cfg.Relay.Port)},
				{"relay.frontend_url", cfg.Relay.FrontendURL},
				{"relay.api_base_url", cfg.Relay.APIBaseURL},
				{"relay.api_key", maskSecret(cfg.Relay.APIKey)},
				{"relay.app_id", cfg.Relay.AppID},
				{"relay.max_upload_bytes", fmt.Sprint(cfg.Relay.MaxUploadBytes)},
				{"relay.max_connections", fmt.Sprint(cfg.Relay.MaxConnections)},
				{"relay.upstream_timeout_seconds", fmt.Sprint(cfg.Relay.UpstreamTimeoutSeconds)},
				{"client.relay_url", cfg.Client.RelayURL},
				{"client.user", cfg.Client.User},
				{"client.timeout_seconds", fmt.Sprint(cfg.Client.TimeoutSeconds)},
				{"store.path", cfg.Store.Path},
				{"store.watch", fmt.Sprint(cfg.Store.Watch)},
				{"log.level", cfg.Log.Level},
				{"log.format", cfg.Log.Format},
				{"ui.markdown_style", cfg.UI.MarkdownStyle},
				{"ui.width", fmt.Sprint(cfg.UI.Width)},
			}
			for _, row := range rows {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
			}
			return w.Flush()
		},
	}
}

// maskSecret keeps the first four characters of a secret
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
