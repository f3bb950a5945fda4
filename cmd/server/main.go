package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skycast-app/skycast/internal/api"
	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/controller"
	"github.com/skycast-app/skycast/internal/favorites"
	"github.com/skycast-app/skycast/internal/forecast"
	"github.com/skycast-app/skycast/internal/geocoding"
	"github.com/skycast-app/skycast/internal/storage/sqlite"
	"github.com/skycast-app/skycast/internal/websocket"
	"github.com/skycast-app/skycast/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// A .env file is optional; environment variables win either way
	_ = godotenv.Load()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Skycast server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Ensure the database directory exists
	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}

	// Create SQLite storage
	kvStorage, err := sqlite.NewKVStorage(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer kvStorage.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Create upstream clients and the favorites store
	geocoder := geocoding.NewClient(cfg.Geocoding, log)
	reverseGeocoder := geocoding.NewReverseClient(cfg.ReverseGeocoding, log)
	forecastClient := forecast.NewClient(cfg.Forecast, log)
	favoritesStore := favorites.NewStore(kvStorage, cfg.Favorites.MaxEntries, log)

	// Create the controller and wire the state push
	ctrl := controller.New(cfg, geocoder, reverseGeocoder, forecastClient, favoritesStore, kvStorage, log)
	ctrl.SetPublisher(wsServer)
	wsServer.SetStateProvider(func() any { return ctrl.State() })
	wsServer.SetMessageHandler(newWSHandler(ctrl))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Error("Failed to start controller", logger.Error(err))
		os.Exit(1)
	}

	// Create API router
	router := api.NewRouter(ctrl, cfg, log, wsServer)

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	log.Info("Stopping controller...")
	ctrl.Stop()
	log.Info("Controller stopped.")

	cancel()

	// Shutdown all HTTP servers
	log.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	log.Info("Server fully stopped")
}

// wsHandler lets dashboard clients request a forecast reload over the socket
type wsHandler struct {
	ctrl *controller.Controller
}

func newWSHandler(ctrl *controller.Controller) *wsHandler {
	return &wsHandler{ctrl: ctrl}
}

func (h *wsHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeRefresh:
		h.ctrl.Refresh()
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", messageType)
	}
}
