// Command fs-export loads flow-record files into ClickHouse for ad-hoc
// analysis. Each input file is read once and appended to the flow_records
// table as a single batch.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FlowSieve/internal/config"
	"FlowSieve/internal/export"
	"FlowSieve/internal/site"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-export: ")

	configPath := flag.String("config", "configs/flowsieve.yaml", "configuration file")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatalf("no input files given")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	st, err := site.New(&cfg.Site)
	if err != nil {
		log.Fatalf("Invalid site configuration: %v", err)
	}

	loader, err := export.NewLoader(cfg.ClickHouse, st)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer loader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var total uint64
	failed := false
	for _, path := range flag.Args() {
		n, err := loader.LoadFile(ctx, path)
		if err != nil {
			log.Printf("Failed to load %s: %v", path, err)
			failed = true
			continue
		}
		log.Printf("Loaded %d records from %s", n, path)
		total += n
	}
	log.Printf("Loaded %d records total", total)
	if failed {
		os.Exit(1)
	}
}
