// Package app wires configuration, storage, NATS, the candle catalog
// and the HTTP surface into one runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/api"
	"github.com/Tradcast/Backend/internal/config"
	"github.com/Tradcast/Backend/internal/infrastructure"
	"github.com/Tradcast/Backend/internal/market"
	"github.com/Tradcast/Backend/internal/session"
	"github.com/Tradcast/Backend/internal/storage"
	"github.com/Tradcast/Backend/internal/wallet"
)

// App defines the application structure and its dependencies
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	JS         nats.JetStreamContext
	Store      *storage.Store
	Sink       *storage.NatsSink
	Catalog    *market.Catalog
	Tracker    *api.GameplayTracker
	HTTPServer *http.Server

	upgrader websocket.Upgrader
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("SECRET must be configured")
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config:  &cfg,
		Logger:  logger,
		Tracker: api.NewGameplayTracker(),
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool
	a.Store = storage.NewStore(dbPool, a.Logger)

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js
	a.Sink = storage.NewNatsSink(js)

	// 3. Price catalog, loaded once and shared read-only by every session
	loader := market.NewLoader(dbPool, a.Logger)
	catalog, err := loader.LoadCatalog(ctx, a.Config.SymbolList(), a.Config.StartOffset)
	if err != nil {
		return fmt.Errorf("failed to load price catalog: %w", err)
	}
	a.Catalog = catalog

	a.upgrader = websocket.Upgrader{CheckOrigin: a.checkOrigin}

	return nil
}

// checkOrigin enforces the configured allow-list; an empty list
// accepts any origin.
func (a *App) checkOrigin(r *http.Request) bool {
	allowed := a.Config.OriginList()
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range allowed {
		if o == origin {
			return true
		}
	}
	return false
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Persist finished sessions from the GAME stream
	saver := storage.NewResultSaver(a.JS, a.Store, a.Logger)
	if err := saver.Run(ctx); err != nil {
		return fmt.Errorf("failed to start result saver: %w", err)
	}

	// Energy regeneration cron
	regen := storage.NewRegenerator(a.Store, a.Config.MaxEnergy, a.Logger)
	go regen.Run(ctx)

	// Setup HTTP Server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DB.Close()

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// sessionConfig maps the app config onto per-session knobs.
func (a *App) sessionConfig() session.Config {
	cfg := session.DefaultConfig(a.Config.Secret)
	cfg.AuthTimeout = a.Config.AuthTimeout()
	cfg.SessionTimeout = a.Config.SessionDuration()
	cfg.WindowSize = a.Config.WindowSize
	cfg.TickInterval = a.Config.TickInterval()
	cfg.SettleInterval = a.Config.SettleInterval()
	cfg.RateLimit = a.Config.RateLimit
	cfg.Wallet = wallet.Config{
		Leverage:     a.Config.Leverage,
		Capital:      a.Config.Capital,
		PositionSize: a.Config.PositionSize,
	}
	return cfg
}

// handleWS upgrades one client connection and runs a full game
// session on it.
func (a *App) handleWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.Logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}
	infrastructure.WSConnections.Inc()
	defer infrastructure.WSConnections.Dec()
	defer conn.Close()

	series := a.Catalog.Pick()
	if series == nil {
		a.Logger.Error("no price series available")
		return
	}

	sess := session.New(session.NewConn(conn), series, a.Store, a.Sink, a.Tracker,
		a.sessionConfig(), a.Logger)
	sess.Run(c.Request.Context())
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "running"})
	})

	apiHandler := api.NewHandler(a.Store, a.Tracker, a.Logger)

	user := r.Group("/api/v1/user")
	{
		user.GET("/home", apiHandler.Home)
		user.GET("/profile", apiHandler.Profile)
		user.GET("/leaderboard", apiHandler.Leaderboard)
		user.GET("/leaderboard/weekly", apiHandler.WeeklyLeaderboard)
		user.GET("/leaderboard/daily", apiHandler.DailyLeaderboard)
	}

	tracker := r.Group("/api/v1/tracker")
	{
		tracker.GET("", apiHandler.GetTracker)
		tracker.GET("/increase", apiHandler.IncreaseTracker)
	}

	r.GET("/ws", a.handleWS)

	return r
}
