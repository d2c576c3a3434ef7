/*
main.go - Application entry point

PURPOSE:
  Starts the jimpitan dues engine server: loads configuration, opens the
  document store, wires the status-cache coordinator and service, and
  runs the HTTP server with graceful shutdown.

COMMAND-LINE FLAGS:
  -config  YAML config path (optional; defaults apply without it)
  -port    HTTP server port override
  -db      Document store path override. Use ":memory:" for ephemeral.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  in-flight requests, close the coordinator and store, exit.

SEE ALSO:
  - api/router.go: Route configuration
  - config/config.go: YAML schema
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

	"github.com/rukun/jimpitan-engine/api"
	"github.com/rukun/jimpitan-engine/config"
	"github.com/rukun/jimpitan-engine/docstore/sqlite"
	"github.com/rukun/jimpitan-engine/dues"
	"github.com/rukun/jimpitan-engine/schedule"
	"github.com/rukun/jimpitan-engine/statuscache"
)

func main() {
	configPath := flag.String("config", "", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port override")
	dbPath := flag.String("db", "", "document store path override")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}
	defer store.Close()

	coord := statuscache.New(statuscache.Config{
		Freshness:      cfg.Cache.Freshness(),
		Throttle:       cfg.Cache.Throttle(),
		BackgroundGate: cfg.Cache.BackgroundGate(),
	})
	defer coord.Close()

	service := dues.New(store, coord, schedule.Clock{})
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Dues engine listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
