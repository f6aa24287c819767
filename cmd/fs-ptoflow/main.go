// Command fs-ptoflow converts packet captures into flow records. Records are
// tagged with a class/type and sensor from the site configuration, then
// either packed straight into the repository or published to the ingest
// message bus for a downstream fs-pack.
package main

import (
	"flag"
	"log"
	"os"

	"FlowSieve/internal/config"
	"FlowSieve/internal/ingest"
	"FlowSieve/internal/model"
	"FlowSieve/internal/site"
	"FlowSieve/pkg/pcap"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-ptoflow: ")

	var (
		configPath = flag.String("config", "configs/flowsieve.yaml", "configuration file")
		classArg   = flag.String("class", "", "class to tag records with")
		typeArg    = flag.String("type", "", "type to tag records with")
		sensorArg  = flag.String("sensor", "", "sensor to tag records with")
		publish    = flag.Bool("publish", false, "publish records to the ingest bus instead of packing locally")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatalf("no pcap files given")
	}
	if *classArg == "" || *typeArg == "" || *sensorArg == "" {
		log.Fatalf("class, type, and sensor are all required")
	}

	// 1. Load configuration and resolve the record tags.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	st, err := site.New(&cfg.Site)
	if err != nil {
		log.Fatalf("Invalid site configuration: %v", err)
	}
	ft, ok := st.FlowtypeByName(*classArg, *typeArg)
	if !ok {
		log.Fatalf("Unknown class/type %s/%s", *classArg, *typeArg)
	}
	sensorID, ok := st.SensorID(*sensorArg)
	if !ok {
		log.Fatalf("Unknown sensor %s", *sensorArg)
	}

	// 2. Set up the record sink: NATS publisher or local packer.
	var sink func(*model.FlowRec) error
	var closeSink func()
	if *publish {
		pub, err := ingest.NewPublisher(cfg.Ingest)
		if err != nil {
			log.Fatalf("Failed to connect to ingest bus: %v", err)
		}
		sink = pub.Publish
		closeSink = pub.Close
	} else {
		packer := ingest.NewPacker(st, cfg.Ingest.FlushRecords)
		sink = func(rec *model.FlowRec) error { return packer.Add(*rec) }
		closeSink = func() {
			if err := packer.Close(); err != nil {
				log.Printf("Error flushing repository files: %v", err)
			}
		}
	}

	// 3. Read each capture and push its flows through the sink.
	var total, failed uint64
	for _, path := range flag.Args() {
		r, err := pcap.NewReader(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		r.ReadFlows(func(rec *model.FlowRec) {
			rec.FlowtypeID = ft.ID
			rec.SensorID = sensorID
			if err := sink(rec); err != nil {
				log.Printf("Failed to store record: %v", err)
				failed++
				return
			}
			total++
		})
		r.Close()
	}
	closeSink()

	log.Printf("Stored %d records (%d failed)", total, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
