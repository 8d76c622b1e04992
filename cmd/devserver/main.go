package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"schoolbus/internal/auth"
	"schoolbus/internal/config"
	"schoolbus/internal/database"
	"schoolbus/internal/handlers"
	"schoolbus/internal/relay"
	"schoolbus/internal/services"
	"schoolbus/internal/websocket"
	"schoolbus/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.GlobalLogger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	tripService := services.NewTripService(db)
	chatService := services.NewChatService(db, tripService)

	// Initialize WebSocket hub manager
	hubManager := websocket.NewManager(chatService)
	defer hubManager.Shutdown()

	if cfg.NATS.URL != "" {
		positions := relay.New(hubManager, db)
		if err := positions.Connect(cfg.NATS.URL, cfg.NATS.Subject); err != nil {
			logger.Error("Position relay disabled: %v", err)
		} else {
			defer positions.Close()
		}
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:      handlers.NewAuthHandlers(authService),
		Trips:     handlers.NewTripHandlers(tripService),
		Chat:      handlers.NewChatHandlers(chatService, hubManager, cfg.Uploads),
		WebSocket: handlers.NewWebSocketHandlers(authService, hubManager),
		UploadDir: cfg.Uploads.Dir,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func openDatabase(ctx context.Context, cfg *config.ServerConfig) (database.Database, error) {
	var seed *database.Seed
	if cfg.SeedFile != "" {
		var err error
		if seed, err = database.LoadSeed(cfg.SeedFile); err != nil {
			return nil, err
		}
	}

	if cfg.Database.URL == "" {
		db := database.NewMemoryDB()
		if seed != nil {
			if err := db.Load(seed); err != nil {
				return nil, err
			}
		}
		logger.Info("Using the in-memory store")
		return db, nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if seed != nil {
		if err := db.Load(ctx, seed); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /api/auth/login")
	logger.Info("   GET  /api/users/drivers")
	logger.Info("   GET  /api/users/{id}")
	logger.Info("   GET  /api/users/{id}/children")
	logger.Info("   GET  /api/bookings/student/{studentId}")
	logger.Info("   GET  /api/trips?driverId=&date=")
	logger.Info("   GET  /api/bus/{busId}")
	logger.Info("   GET  /api/routes/{routeId}")
	logger.Info("   GET  /api/chats/{busId}/{tripId}")
	logger.Info("   POST /api/chats/{busId}/{tripId}")
	logger.Info("   POST /api/uploads")
}
