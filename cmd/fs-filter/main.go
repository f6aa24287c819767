// fs-filter selects flow records from the repository (or an explicit list
// of files), runs them through the configured checker chain, and routes
// them into pass/fail/all destinations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FlowSieve/internal/dispatch"
	"FlowSieve/internal/model"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-filter: ")

	app := newApp()
	app.registerFlags(flag.CommandLine)
	flag.Parse()
	app.inputFiles = flag.Args()

	if err := app.setup(); err != nil {
		fmt.Fprintf(os.Stderr, "fs-filter: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	d, err := dispatch.New(app.dispatchOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fs-filter: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	// The coordinator owns signal handling; workers only poll the shared
	// flag. On receipt the run winds down cooperatively, flushing buffers.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Caught signal..cleaning up and exiting")
		d.Stop()
	}()

	stats, runErr := d.Run()
	app.teardown()

	if app.wantStats() {
		printStats(os.Stderr, &stats, app.printVolumeStats)
	}

	if runErr != nil {
		os.Exit(1)
	}
}

// printStats writes the run summary: a one-line count summary, or the
// four-row volume table when byte/packet totals were requested.
func printStats(w *os.File, stats *model.FilterStats, volume bool) {
	if volume {
		fmt.Fprintf(w, "%5s|%18s|%18s|%20s|%10s|\n",
			"", "Recs", "Packets", "Bytes", "Files")
		fmt.Fprintf(w, "%5s|%18d|%18d|%20d|%10d|\n",
			"Total", stats.Read.Flows, stats.Read.Pkts, stats.Read.Bytes, stats.Files)
		fmt.Fprintf(w, "%5s|%18d|%18d|%20d|%10s|\n",
			"Pass", stats.Pass.Flows, stats.Pass.Pkts, stats.Pass.Bytes, "")
		fmt.Fprintf(w, "%5s|%18d|%18d|%20d|%10s|\n",
			"Fail",
			stats.Read.Flows-stats.Pass.Flows,
			stats.Read.Pkts-stats.Pass.Pkts,
			stats.Read.Bytes-stats.Pass.Bytes, "")
		return
	}
	fmt.Fprintf(w, "Files %5d.  Read %10d.  Pass %10d. Fail  %10d.\n",
		stats.Files, stats.Read.Flows, stats.Pass.Flows,
		stats.Read.Flows-stats.Pass.Flows)
}
