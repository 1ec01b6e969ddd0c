package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/tale555/dify-chat-webapp/internal/render"
	"github.com/tale555/dify-chat-webapp/internal/tui"
)

func newChatCmd(deps *Dependencies, g *globalOptions) *cobra.Command {
	var exportDir string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

The last active conversation is restored. Press Tab to browse stored
conversations, type /help for commands, and 'exit', 'quit' or Ctrl+C to
end the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), deps, g, exportDir)
		},
	}

	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Directory /export writes to (default current directory)")
	return cmd
}

func runChat(ctx context.Context, deps *Dependencies, g *globalOptions, exportDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := g.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	controller, err := a.newController(deps)
	if err != nil {
		return err
	}
	if err := controller.Restore(); err != nil {
		return err
	}

	a.watch(ctx)

	tui.ApplyMarkdownStyle(a.cfg.UI.MarkdownStyle)

	if exportDir == "" {
		if wd, err := os.Getwd(); err == nil {
			exportDir = wd
		} else {
			exportDir = "."
		}
	}

	return deps.RunChat(ctx, controller, a.history, a.bus,
		tui.WithRenderOptions(render.FromConfig(a.cfg.UI)),
		tui.WithExportDir(exportDir),
	)
}
