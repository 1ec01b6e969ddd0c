package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tale555/dify-chat-webapp/internal/api"
	"github.com/tale555/dify-chat-webapp/internal/history"
	"github.com/tale555/dify-chat-webapp/internal/render"
)

// runQuery sends one message into the current conversation and prints the
// reply. The reply is rendered as markdown only when stdout is a terminal.
func runQuery(cmd *cobra.Command, deps *Dependencies, g *globalOptions, q *queryOptions, prompt string) error {
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

	var attachment *api.Attachment
	if q.image != "" {
		attachment, err = api.LoadAttachment(q.image)
		if err != nil {
			return err
		}
	}

	stdout := cmd.OutOrStdout()
	interactive := !q.raw && q.output == "" && deps.IsTerminal(stdout)

	log.Debug().
		Str("conversation", controller.Conversation().ID).
		Bool("image", attachment != nil).
		Msg("sending one-shot message")

	var spin *spinner
	if interactive {
		spin = newSpinner(cmd.ErrOrStderr(), "Waiting for the assistant")
		spin.start()
	}
	sendErr := controller.Send(cmd.Context(), prompt, attachment)
	if spin != nil {
		spin.finish()
	}
	if sendErr != nil {
		return sendErr
	}

	msgs := controller.Messages()
	reply := msgs[len(msgs)-1].Content

	if q.output != "" {
		if err := os.WriteFile(q.output, []byte(reply+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Reply saved to %s\n", q.output)
		return nil
	}

	if !interactive {
		fmt.Fprintln(stdout, reply)
		return nil
	}
	return printReply(stdout, reply, render.FromConfig(a.cfg.UI))
}

// printReply renders reply inside an assistant bubble sized to the terminal
func printReply(w io.Writer, reply string, opts render.Options) error {
	width := terminalWidth(w, opts.Width)
	opts = opts.WithWidth(width - 4)

	rendered, err := render.Markdown(reply, opts)
	if err != nil {
		rendered = reply
	}

	theme := render.GetTUITheme()
	color := theme.RoleColor(history.RoleAssistant)
	label := lipgloss.NewStyle().Foreground(color).Bold(true).Render(history.RoleAssistant.Label())
	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Foreground(theme.Text).
		Padding(0, 1).
		Width(width - 2).
		Render(rendered)

	_, err = fmt.Fprintf(w, "%s\n%s\n", label, bubble)
	return err
}

func terminalWidth(w io.Writer, fallback int) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
			return width
		}
	}
	if fallback < 20 {
		return 80
	}
	return fallback
}
