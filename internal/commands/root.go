// Package commands provides CLI commands for difychat.
package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tale555/dify-chat-webapp/internal/tui"
)

// Version info (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// globalOptions holds the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	storePath  string
	ephemeral  bool
}

// queryOptions holds the one-shot flags of the root command
type queryOptions struct {
	output  string
	file    string
	image   string
	raw     bool
	version bool
}

// NewRootCmd creates the command tree
func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps == nil {
		deps = NewDependencies()
	}
	g := &globalOptions{}
	q := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "difychat [prompt]",
		Short: "Terminal client and relay for a Dify chat app",
		Long: `difychat is a terminal chat client for a Dify application.
Messages go through a local relay ('difychat serve') that holds the Dify API
key. Conversations are stored locally and shared between all difychat
processes using the same store.

Examples:
  difychat serve                         Start the relay
  difychat chat                          Start interactive chat
  difychat "What is Go?"                 Send a single message
  difychat -i photo.png "What is this?"  Send a message with an image
  difychat -f prompt.md                  Read the message from a file
  cat prompt.md | difychat               Read the message from stdin
  difychat "Hello" -o reply.md           Save the reply to a file
  difychat history list                  List stored conversations`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.initLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if q.version {
				fmt.Fprintf(cmd.OutOrStdout(), "difychat %s (built %s)\n", Version, BuildTime)
				return nil
			}

			prompt, err := readPrompt(cmd.InOrStdin(), deps.StdinIsPipe(), q.file, args)
			if err != nil {
				return err
			}
			if prompt == "" && q.image == "" {
				return cmd.Help()
			}
			return runQuery(cmd, deps, g, q, prompt)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default ./difychat.toml or ~/.difychat/config.toml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text or json)")
	cmd.PersistentFlags().StringVar(&g.storePath, "store", "", "Conversation store file")
	cmd.PersistentFlags().BoolVar(&g.ephemeral, "ephemeral", false, "Keep conversations in memory only")

	cmd.Flags().StringVarP(&q.output, "output", "o", "", "Save the reply to file")
	cmd.Flags().StringVarP(&q.file, "file", "f", "", "Read the message from file")
	cmd.Flags().StringVarP(&q.image, "image", "i", "", "Path to an image file to include")
	cmd.Flags().BoolVar(&q.raw, "raw", false, "Print the reply without formatting")
	cmd.Flags().BoolVarP(&q.version, "version", "v", false, "Show version and exit")

	cmd.AddCommand(newChatCmd(deps, g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newHistoryCmd(deps, g))
	cmd.AddCommand(newConfigCmd(g))

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd(NewDependencies()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, tui.FormatError(err))
		os.Exit(1)
	}
}

// readPrompt picks the message from --file, piped stdin or the argument, in
// that order
func readPrompt(stdin io.Reader, hasStdin bool, file string, args []string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if hasStdin {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if prompt := strings.TrimSpace(string(data)); prompt != "" {
			return prompt, nil
		}
	}

	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	return "", nil
}
