// Command carpark starts the parking puzzle server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, level and session directories, logging, and
// optional ngrok tunneling for easy external access during development.
// Every flag can also be set from the environment or a .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/carpark/api"
	"github.com/wricardo/mcp-training/carpark/game/config"
	"github.com/wricardo/mcp-training/carpark/game/service"
	"github.com/wricardo/mcp-training/carpark/game/session"
	"github.com/wricardo/mcp-training/carpark/logger"
	"github.com/wricardo/mcp-training/carpark/transport/mcp"
	"github.com/wricardo/mcp-training/carpark/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Car Park Puzzle Server"
)

// options is everything the flags decide
type options struct {
	Host         string
	Port         int
	ConfigDir    string
	SessionsDir  string
	SessionTTL   time.Duration
	WatchConfigs bool
	LogLevel     string
	LogFormat    string
	NgrokEnabled bool
	NgrokAuth    string
	NgrokDomain  string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
		&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing level files", Sources: cli.EnvVars("CONFIG_DIR")},
		&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for persisted sessions", Sources: cli.EnvVars("SESSIONS_DIR")},
		&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Drop sessions from memory after this long without access", Sources: cli.EnvVars("SESSION_TTL")},
		&cli.BoolFlag{Name: "watch-configs", Value: true, Usage: "Reload level files when they change on disk", Sources: cli.EnvVars("WATCH_CONFIGS")},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (debug, info, warn, error)", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format (text or json)", Sources: cli.EnvVars("LOG_FORMAT")},
		&cli.BoolFlag{Name: "debug", Usage: "Shorthand for --log-level debug"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
	}
}

func optionsFrom(cmd *cli.Command) options {
	opts := options{
		Host:         cmd.String("host"),
		Port:         int(cmd.Int("port")),
		ConfigDir:    cmd.String("config-dir"),
		SessionsDir:  cmd.String("sessions-dir"),
		SessionTTL:   cmd.Duration("session-ttl"),
		WatchConfigs: cmd.Bool("watch-configs"),
		LogLevel:     cmd.String("log-level"),
		LogFormat:    cmd.String("log-format"),
		NgrokEnabled: cmd.Bool("ngrok"),
		NgrokAuth:    cmd.String("ngrok-auth"),
		NgrokDomain:  cmd.String("ngrok-domain"),
	}
	if cmd.Bool("debug") {
		opts.LogLevel = "debug"
	}
	return opts
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "carpark",
		Usage:   AppName,
		Version: Version,
		Flags:   appFlags(),
		Action:  serverAction,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serverAction,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server, starting an internal HTTP server if none is running",
				Action:  stdioAction,
			},
		},
	}
}

func main() {
	// A missing .env file is fine
	envErr := godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", envErr)
	}
}

func serverAction(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	log := logger.New(logger.Options{Level: opts.LogLevel, Format: opts.LogFormat})
	log.WithField("version", Version).Infof("Starting %s", AppName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initializeServices(opts, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	app.startBackground(ctx, opts)

	return runHTTPServer(ctx, opts, app)
}

func stdioAction(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	// stdout carries the MCP protocol
	log := logger.New(logger.Options{Level: opts.LogLevel, Format: opts.LogFormat, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initializeServices(opts, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	app.startBackground(ctx, opts)

	return runStdioMCPWithInternalServer(ctx, opts, app)
}

// services is the wired application
type services struct {
	game        service.GameService
	configs     *config.Manager
	sessions    *session.Manager
	persistence session.SessionPersistence
	hub         *websocket.Hub
	log         *logrus.Logger
}

func initializeServices(opts options, log *logrus.Logger) (*services, error) {
	configManager, err := config.NewManager(opts.ConfigDir, log.WithField("component", "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(opts.SessionsDir, configManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence, log.WithField("component", "session"))
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		log.WithError(err).Warn("Failed to load persisted sessions")
	}

	gameService := service.NewGameService(sessionManager, configManager, log.WithField("component", "service"))

	return &services{
		game:        gameService,
		configs:     configManager,
		sessions:    sessionManager,
		persistence: persistence,
		hub:         websocket.NewHub(log.WithField("component", "websocket")),
		log:         log,
	}, nil
}

// startBackground runs the hub and the housekeeping loops until ctx is done
func (s *services) startBackground(ctx context.Context, opts options) {
	go s.hub.Run(ctx)
	go sessionCleanupRoutine(ctx, s.sessions, opts.SessionTTL, s.log)
	go filesystemSyncRoutine(ctx, s.sessions, s.persistence, s.log)

	if opts.WatchConfigs {
		go func() {
			err := s.configs.Watch(ctx, func(id string) {
				s.log.WithField("level", id).Info("Level file changed; new sessions use the new version")
			})
			if err != nil {
				s.log.WithError(err).Warn("Level watcher stopped")
			}
		}()
	}
}

// sessionCleanupRoutine drops idle sessions from memory. Their files stay, so
// they load again on the next access.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				log.WithField("removed", removed).Info("Cleaned up expired sessions")
			}
		}
	}
}

// filesystemSyncRoutine forgets sessions whose files were deleted by hand
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, log logrus.FieldLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pruned := 0
		for _, sess := range manager.List() {
			if persistence.Exists(sess.ID) {
				continue
			}
			if err := manager.DeleteFromMemory(sess.ID); err == nil {
				pruned++
				log.WithField("session", sess.ID).Info("Pruned session from memory (file deleted)")
			}
		}
		if pruned > 0 {
			log.WithField("pruned", pruned).Info("Filesystem sync pruned orphaned sessions")
		}
	}
}

// newRouter mounts the REST API, the WebSocket endpoint and the /mcp proxy
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// runHTTPServer serves until ctx is cancelled, then saves every session.
// If ngrok is enabled it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, opts options, app *services) error {
	log := app.log
	addr := opts.addr()

	apiServer := api.NewServer(app.game, app.hub, log.WithField("component", "api"))
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	handler := newRouter(apiServer, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Infof("HTTP server listening on %s", addr)
		log.Infof("REST API: http://%s/api", addr)
		log.Infof("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Infof("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	if opts.NgrokEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, opts, handler, log)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	if err := app.sessions.SaveAllSessions(); err != nil {
		log.WithError(err).Warn("Failed to save sessions on shutdown")
	}

	wg.Wait()
	log.Info("Server stopped")
	return runErr
}

func runNgrok(ctx context.Context, opts options, handler http.Handler, log *logrus.Logger) {
	if opts.NgrokAuth == "" {
		log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.NgrokDomain))
		log.WithField("domain", opts.NgrokDomain).Info("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.NgrokAuth))
	if err != nil {
		log.WithError(err).Error("Failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Infof("Ngrok tunnel established: %s", ngrokURL)
	log.Infof("  REST API (ngrok): %s/api", ngrokURL)
	log.Infof("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	// Closing the tunnel ends Serve
	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.WithError(err).Warn("Ngrok server error")
	}
	log.Info("Ngrok tunnel closed")
}

// externalAPIAvailable reports whether a server already answers at baseURL
func externalAPIAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCPWithInternalServer proxies MCP over stdio to a running server on
// the configured address, or to an internal one on a random local port.
func runStdioMCPWithInternalServer(ctx context.Context, opts options, app *services) error {
	log := app.log
	externalURL := fmt.Sprintf("http://%s", opts.addr())
	baseURL := externalURL

	log.Infof("Checking for external API server at %s...", externalURL)
	if externalAPIAvailable(externalURL) {
		log.Infof("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Info("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()

		apiServer := api.NewServer(app.game, app.hub, log.WithField("component", "api"))
		httpServer := &http.Server{Handler: apiServer}

		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Internal HTTP server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
			if err := app.sessions.SaveAllSessions(); err != nil {
				log.WithError(err).Warn("Failed to save sessions on shutdown")
			}
		}()

		baseURL = fmt.Sprintf("http://%s", internalAddr)
		log.Infof("Internal HTTP server on %s for MCP stdio", internalAddr)
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
