package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/tale555/dify-chat-webapp/internal/api"
	"github.com/tale555/dify-chat-webapp/internal/config"
	"github.com/tale555/dify-chat-webapp/internal/events"
	"github.com/tale555/dify-chat-webapp/internal/history"
	"github.com/tale555/dify-chat-webapp/internal/logging"
	"github.com/tale555/dify-chat-webapp/internal/session"
	"github.com/tale555/dify-chat-webapp/internal/store"
	"github.com/tale555/dify-chat-webapp/internal/tui"
)

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// NewChatClient creates the client that talks to the relay.
	NewChatClient func(cfg *config.Config) (api.ChatClient, error)

	// RunChat runs the chat TUI.
	RunChat func(ctx context.Context, controller *session.Controller, repo tui.ConversationRepository, bus *events.Bus, opts ...tui.ChatOption) error

	// Clipboard is used by the session controller. Nil means the system clipboard.
	Clipboard session.Clipboard

	// StdinIsPipe reports whether input is being piped in.
	StdinIsPipe func() bool

	// IsTerminal reports whether w is an interactive terminal.
	IsTerminal func(w io.Writer) bool
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		NewChatClient: defaultChatClient,
		RunChat:       tui.RunChat,
		StdinIsPipe:   stdinIsPipe,
		IsTerminal:    isTerminal,
	}
}

func defaultChatClient(cfg *config.Config) (api.ChatClient, error) {
	client, err := api.NewClient(cfg.Client.RelayURL,
		api.WithTimeout(time.Duration(cfg.Client.TimeoutSeconds)*time.Second))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func stdinIsPipe() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// initLogging applies the log flags before any configuration is read
func (g *globalOptions) initLogging() error {
	format := g.logFormat
	if format == "" {
		format = "text"
	}
	return logging.Init(logging.Config{Level: g.logLevel, Format: format})
}

// loadConfig reads the configuration and applies flag overrides
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.storePath != "" {
		cfg.Store.Path = g.storePath
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired conversation stack shared by the subcommands
type app struct {
	cfg     *config.Config
	bolt    *store.BoltStore // nil for an ephemeral store
	bus     *events.Bus
	history *history.Store
}

// openApp loads the configuration and opens the conversation store
func (g *globalOptions) openApp() (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	var kv store.KV
	if g.ephemeral {
		kv = store.NewMemoryStore()
	} else {
		a.bolt = store.NewBoltStore(cfg.Store.Path)
		kv = a.bolt
	}

	busLogger := log.Logger.With().Str("component", "events").Logger()
	a.bus = events.NewBus(events.WithLogger(logging.NewWatermillAdapter(busLogger)))
	a.history = history.NewStore(kv, history.WithBus(a.bus))

	log.Debug().
		Str("store", cfg.Store.Path).
		Bool("ephemeral", g.ephemeral).
		Msg("conversation store opened")
	return a, nil
}

// watch forwards writes made by other processes to the history store until
// ctx is done. It is a no-op for ephemeral stores or when watching is off.
func (a *app) watch(ctx context.Context) {
	if a.bolt == nil || !a.cfg.Store.Watch {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.bolt.Path()), 0o700); err != nil {
		log.Warn().Err(err).Msg("store directory unavailable, not watching")
		return
	}

	w, err := store.NewWatcher(a.bolt, a.history.NotifyExternalChange)
	if err != nil {
		log.Warn().Err(err).Msg("failed to watch store")
		return
	}
	go func() {
		defer w.Close()
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("store watcher stopped")
		}
	}()
}

// newController builds a session controller over the history store
func (a *app) newController(deps *Dependencies) (*session.Controller, error) {
	if err := config.ValidateClient(a.cfg); err != nil {
		return nil, err
	}
	client, err := deps.NewChatClient(a.cfg)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{session.WithUser(a.cfg.Client.User)}
	if deps.Clipboard != nil {
		opts = append(opts, session.WithClipboard(deps.Clipboard))
	}
	return session.New(a.history, client, opts...), nil
}

func (a *app) Close() error {
	return a.bus.Close()
}
