package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tale555/dify-chat-webapp/internal/history"
	"github.com/tale555/dify-chat-webapp/internal/render"
)

func newHistoryCmd(deps *Dependencies, g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage conversation history",
		Long: `View and manage the locally stored conversations.

` + history.ListAliases(),
	}

	cmd.AddCommand(
		newHistoryListCmd(g),
		newHistoryShowCmd(deps, g),
		newHistoryDeleteCmd(g),
		newHistoryClearCmd(g),
		newHistoryExportCmd(g),
		newHistorySearchCmd(g),
		newHistoryCurrentCmd(g),
	)
	return cmd
}

func newHistoryListCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			conversations := a.history.ListAll()
			if len(conversations) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}

			current, _ := a.history.CurrentPointer()
			now := a.history.Now()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tID\tTITLE\tMESSAGES\tUPDATED")
			for i, conv := range conversations {
				marker := ""
				if conv.ID == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%d%s\t%s\t%s\t%d\t%s\n",
					i+1, marker, conv.ID, truncateTitle(conv.Title, 40), len(conv.Messages),
					history.FormatListDate(conv.UpdatedAt, now))
			}
			return w.Flush()
		},
	}
}

func newHistoryShowCmd(deps *Dependencies, g *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := history.NewResolver(a.history).ResolveWithInfo(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := render.FromConfig(a.cfg.UI)
			if raw || !deps.IsTerminal(out) {
				opts = opts.WithStyle(render.StyleNoTTY)
			}

			now := a.history.Now()
			fmt.Fprintf(out, "ID: %s\n", conv.ID)
			fmt.Fprintf(out, "Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated: %s (%s)\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"), history.FormatListDate(conv.UpdatedAt, now))
			if conv.ConversationID != "" {
				fmt.Fprintf(out, "Remote conversation: %s\n", conv.ConversationID)
			}
			fmt.Fprintf(out, "Messages: %d\n\n", len(conv.Messages))

			transcript, err := render.Transcript(conv, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, transcript)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print message content without markdown styling")
	return cmd
}

func newHistoryDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := history.NewResolver(a.history).Resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.history.Delete(id); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation: %s\n", id)
			return nil
		},
	}
}

func newHistoryClearCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete every conversation without --force")
			}

			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.history.Clear(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "All conversations deleted.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deleting every conversation")
	return cmd
}

func newHistoryExportCmd(g *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Export a conversation",
		Long: `Export a conversation as text, markdown, html or json.

Without --output the export is written to stdout. When --output is a
directory a file name is derived from the title and date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}

			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := history.NewResolver(a.history).ResolveWithInfo(args[0])
			if err != nil {
				return err
			}

			data, err := history.Export(conv, f)
			if err != nil {
				return err
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			path := output
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				path = filepath.Join(output, history.ExportFileName(conv, f, a.history.Now()))
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "F", "md", "Export format (text, md, html, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory")
	return cmd
}

func newHistorySearchCmd(g *globalOptions) *cobra.Command {
	var content bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			results := a.history.Search(args[0], content)
			if len(results) == 0 {
				fmt.Fprintln(out, "No matches found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTITLE\tMATCH")
			for _, r := range results {
				match := r.MatchField
				if r.MatchField == "content" {
					match = fmt.Sprintf("message %d: %s", r.MatchIndex+1, r.MatchSnippet)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Conversation.ID, truncateTitle(r.Conversation.Title, 40), match)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&content, "content", false, "Also search message content")
	return cmd
}

func newHistoryCurrentCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "current [ref]",
		Short: "Show or set the active conversation",
		Long: `Without arguments, print the conversation that 'difychat chat' and
one-shot messages continue. With a reference, make it the active one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id, err := history.NewResolver(a.history).Resolve(args[0])
				if err != nil {
					return err
				}
				if err := a.history.SetCurrentPointer(id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Current conversation: %s\n", id)
				return nil
			}

			id, ok := a.history.CurrentPointer()
			if !ok {
				fmt.Fprintln(out, "No current conversation.")
				return nil
			}
			conv, found := a.history.Get(id)
			if !found {
				fmt.Fprintf(out, "Current conversation %s no longer exists.\n", id)
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\n", conv.ID, conv.Title)
			return nil
		},
	}
}

// truncateTitle shortens a title to n runes
func truncateTitle(title string, n int) string {
	runes := []rune(title)
	if len(runes) <= n {
		return title
	}
	return string(runes[:n]) + "..."
}
