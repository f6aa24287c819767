// Package export bulk-loads flow-record files into ClickHouse for ad hoc
// analysis outside the toolkit.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"FlowSieve/internal/config"
	"FlowSieve/internal/flowio"
	"FlowSieve/internal/site"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    Proto       UInt8,
    TCPFlags    UInt8,
    Packets     UInt64,
    Bytes       UInt64,
    StartTime   DateTime64(3),
    DurationMs  UInt64,
    Class       String,
    Type        String,
    Sensor      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (Class, Type, Sensor, StartTime);
`

// Loader inserts flow-record files into the flow_records table.
type Loader struct {
	conn driver.Conn
	site *site.Site
}

// NewLoader connects to ClickHouse and ensures the table exists. The site
// is used to resolve sensor and class/type ids back to names.
func NewLoader(cfg config.ClickHouseConfig, st *site.Site) (*Loader, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &Loader{conn: conn, site: st}, nil
}

// Close releases the ClickHouse connection.
func (l *Loader) Close() error {
	return l.conn.Close()
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// LoadFile reads one flow-record file and inserts its records as a single
// batch. It returns the number of records loaded.
func (l *Loader) LoadFile(ctx context.Context, path string) (uint64, error) {
	in, err := flowio.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	batch, err := l.conn.PrepareBatch(ctx, "INSERT INTO flow_records")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	var count uint64
	for {
		rec, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read %s: %w", path, err)
		}

		class, typ := "?", "?"
		if ft, ok := l.site.FlowtypeByID(rec.FlowtypeID); ok {
			class, typ = ft.Class, ft.Type
		}
		err = batch.Append(
			rec.SrcIP.String(),
			rec.DstIP.String(),
			rec.SrcPort,
			rec.DstPort,
			rec.Proto,
			rec.TCPFlags,
			rec.Packets,
			rec.Bytes,
			rec.StartTime,
			uint64(rec.Duration.Milliseconds()),
			class,
			typ,
			l.site.SensorName(rec.SensorID),
		)
		if err != nil {
			return count, fmt.Errorf("failed to append record: %w", err)
		}
		count++
	}

	if err := batch.Send(); err != nil {
		return count, fmt.Errorf("failed to send batch: %w", err)
	}
	return count, nil
}
