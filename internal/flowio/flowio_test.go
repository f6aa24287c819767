package flowio

import (
	"compress/gzip"
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FlowSieve/internal/model"
)

func sampleRecords(n int) []model.FlowRec {
	recs := make([]model.FlowRec, n)
	for i := range recs {
		recs[i] = model.FlowRec{
			SrcIP:     netip.MustParseAddr("10.0.0.1"),
			DstIP:     netip.MustParseAddr("192.168.0.2"),
			SrcPort:   uint16(40000 + i),
			DstPort:   80,
			Proto:     6,
			Packets:   uint64(i + 1),
			Bytes:     uint64((i + 1) * 40),
			StartTime: time.Date(2024, 3, 5, 7, 0, int(i), 0, time.UTC),
			Duration:  2 * time.Second,
		}
	}
	return recs
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.dat")
	recs := sampleRecords(5)

	// 1. Write the records.
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatalf("Write record %d failed: %v", i, err)
		}
	}
	if w.Count() != 5 {
		t.Errorf("Expected count 5, got %d", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// 2. Read them back and compare.
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()
	for i := range recs {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read record %d failed: %v", i, err)
		}
		if got.SrcIP != recs[i].SrcIP || got.SrcPort != recs[i].SrcPort ||
			got.Bytes != recs[i].Bytes || !got.StartTime.Equal(recs[i].StartTime) {
			t.Errorf("Record %d: expected %+v, got %+v", i, recs[i], got)
		}
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestOpenReader_GzipStream(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "flows.dat")
	gzPath := filepath.Join(dir, "flows.dat.gz")
	recs := sampleRecords(3)

	w, err := Create(plain)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Compress the stream the way an archiver would.
	data, err := os.ReadFile(plain)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	f, err := os.Create(gzPath)
	if err != nil {
		t.Fatalf("Create gz failed: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	gz.Close()
	f.Close()

	r, err := OpenReader(gzPath)
	if err != nil {
		t.Fatalf("OpenReader on .gz failed: %v", err)
	}
	defer r.Close()
	var n int
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("Expected 3 records from gz stream, got %d", n)
	}
}

func TestOpenReader_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notflows.dat")
	if err := os.WriteFile(path, []byte("this is not a flow stream"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Fatalf("Expected an error opening a non-stream file, got none")
	}
}

func TestWrite_AfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.dat")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	rec := sampleRecords(1)[0]
	if err := w.Write(&rec); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}
