// Package relay implements the HTTP relay that forwards chat requests to the
// upstream API with the server-side key.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"

	"github.com/tale555/dify-chat-webapp/internal/config"
	"github.com/tale555/dify-chat-webapp/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// Server represents the relay server
type Server struct {
	echo     *echo.Echo
	cfg      config.RelayConfig
	upstream *Upstream
	logger   zerolog.Logger
}

// Option configures a Server
type Option func(*serverOptions)

type serverOptions struct {
	httpClient tls_client.HttpClient
	logger     *zerolog.Logger
}

// WithHTTPClient sets the transport used for upstream calls
func WithHTTPClient(c tls_client.HttpClient) Option {
	return func(o *serverOptions) { o.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *serverOptions) { o.logger = &l }
}

// NewServer creates the relay. It fails when the configuration lacks the
// upstream credentials.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := config.ValidateRelay(cfg); err != nil {
		return nil, err
	}

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	logger := log.Logger.With().Str("component", "relay").Logger()
	if o.logger != nil {
		logger = *o.logger
	}

	httpClient := o.httpClient
	if httpClient == nil {
		timeout := time.Duration(cfg.Relay.UpstreamTimeoutSeconds) * time.Second
		c, err := transport.NewHTTPClient(timeout)
		if err != nil {
			return nil, err
		}
		httpClient = c
	}

	relayCfg := cfg.Relay
	if relayCfg.MaxUploadBytes <= 0 {
		relayCfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}

	s := &Server{
		echo:     echo.New(),
		cfg:      relayCfg,
		upstream: NewUpstream(httpClient, relayCfg.APIBaseURL, relayCfg.APIKey),
		logger:   logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Error != nil {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.cfg.FrontendURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	// Room for the multipart envelope around the largest image
	limit := s.cfg.MaxUploadBytes + 1024*1024
	s.echo.Use(middleware.BodyLimit(fmt.Sprintf("%dK", limit/1024)))
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	api := s.echo.Group("/api")
	api.POST("/chat-messages", s.chatMessages)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe listens on the configured port and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("api_base_url", s.cfg.APIBaseURL).
		Str("app_id", s.cfg.AppID).
		Msg("relay started")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		s.logger.Info().Msg("relay stopped")
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
