/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the campaign engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present), config file, environment overrides, flags
  2. Initialize SQLite store
  3. Create API handler and campaign scheduler
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: campaigns.db)
           Use ":memory:" for an in-memory database
  -config  YAML config file path (optional)

CONFIG PRECEDENCE (lowest to highest):
  built-in defaults < YAML file < environment < flags

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for an in-flight tick
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/campaigns.db"

  # Run with in-memory database (demo mode)
  ./server -db=":memory:"

  # Run on different port with a config file
  ./server -port=3000 -config=campaigns.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: The send/evaluate loop
  - config/config.go: Configuration layering
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/attackacrack/campaign-engine/api"
	"github.com/attackacrack/campaign-engine/campaign"
	"github.com/attackacrack/campaign-engine/config"
	"github.com/attackacrack/campaign-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	configPath := flag.String("config", "", "YAML config file path")
	flag.Parse()

	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Transport and notifications. The log transport stands in until a
	// real SMS provider client is wired here.
	transport := campaign.LogTransport{}
	notifier := campaign.LogNotifier{}

	// Scheduler
	scheduler := api.NewCampaignScheduler(store, transport, notifier)
	scheduler.TickInterval = cfg.TickInterval
	scheduler.DispatchTimeout = cfg.DispatchTimeout
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()
	defer scheduler.Stop()

	// Handler and router
	handler := api.NewHandler(store, cfg.Campaign)
	handler.Scheduler = scheduler
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
