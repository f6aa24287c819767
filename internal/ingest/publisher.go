// Package ingest moves flow records from collection points into the
// repository: a NATS publisher on the sensor side, and a subscriber plus
// packer on the repository side that files records by coordinate.
package ingest

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"FlowSieve/internal/config"
	"FlowSieve/internal/model"
)

// Publisher publishes flow records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.IngestConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes one record as JSON and publishes it.
func (p *Publisher) Publish(rec *model.FlowRec) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
