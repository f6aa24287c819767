// Command fs-api serves filter queries over HTTP. A query selects hourly
// files from the repository, runs them through the checker chain, and
// returns counts plus a sample of the passing records.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowSieve/internal/config"
	"FlowSieve/internal/site"

	"github.com/gorilla/mux"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-api: ")

	configPath := flag.String("config", "configs/flowsieve.yaml", "configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	st, err := site.New(&cfg.Site)
	if err != nil {
		log.Fatalf("Invalid site configuration: %v", err)
	}

	// Initialize router
	r := mux.NewRouter()

	apiHandler := &APIHandler{site: st}

	// Define API routes
	r.HandleFunc("/api/v1/filter", apiHandler.filterFlowsHandler).Methods("POST")
	r.HandleFunc("/api/v1/site", apiHandler.siteHandler).Methods("GET")

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}
