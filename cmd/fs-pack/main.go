// Command fs-pack subscribes to the ingest message bus and writes the
// incoming flow records into the hourly repository tree. It runs until
// interrupted, flushing open files on shutdown.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FlowSieve/internal/config"
	"FlowSieve/internal/ingest"
	"FlowSieve/internal/model"
	"FlowSieve/internal/site"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-pack: ")

	configPath := flag.String("config", "configs/flowsieve.yaml", "configuration file")
	flag.Parse()

	// 1. Load configuration and the site layout.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	st, err := site.New(&cfg.Site)
	if err != nil {
		log.Fatalf("Invalid site configuration: %v", err)
	}

	// 2. Start the packer and the bus subscription.
	packer := ingest.NewPacker(st, cfg.Ingest.FlushRecords)
	sub, err := ingest.NewSubscriber(cfg.Ingest)
	if err != nil {
		log.Fatalf("Failed to connect to ingest bus: %v", err)
	}

	var received, dropped uint64
	err = sub.Start(func(rec model.FlowRec) {
		if err := packer.Add(rec); err != nil {
			log.Printf("Failed to pack record: %v", err)
			dropped++
			return
		}
		received++
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	log.Printf("Packing records from subject %q into %s", cfg.Ingest.Subject, st.Root())

	// 3. Wait for a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("Caught signal, cleaning up and exiting...")

	sub.Close()
	if err := packer.Close(); err != nil {
		log.Printf("Error flushing repository files: %v", err)
	}
	log.Printf("Packed %d records (%d dropped)", received, dropped)
}
