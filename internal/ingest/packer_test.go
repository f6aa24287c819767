package ingest

import (
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FlowSieve/internal/config"
	"FlowSieve/internal/flowio"
	"FlowSieve/internal/model"
	"FlowSieve/internal/repo"
	"FlowSieve/internal/site"
)

func packerSite(t *testing.T) *site.Site {
	t.Helper()
	s, err := site.New(&config.SiteConfig{
		Root: t.TempDir(),
		Classes: []config.ClassDef{
			{Name: "all", Types: []string{"in"}, Sensors: []string{"S0"}},
		},
	})
	if err != nil {
		t.Fatalf("site.New failed: %v", err)
	}
	return s
}

func sampleRec(start time.Time, port uint16) model.FlowRec {
	return model.FlowRec{
		SrcIP:     netip.MustParseAddr("10.0.0.1"),
		DstIP:     netip.MustParseAddr("192.168.0.2"),
		SrcPort:   port,
		DstPort:   80,
		Proto:     6,
		Packets:   1,
		Bytes:     40,
		StartTime: start,
	}
}

func TestPacker_FilesRecordsByCoordinate(t *testing.T) {
	s := packerSite(t)
	p := NewPacker(s, 4)

	h0 := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	h1 := h0.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if err := p.Add(sampleRec(h0.Add(time.Duration(i)*time.Minute), uint16(i))); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := p.Add(sampleRec(h1, 99)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Each hour got its own file, records intact.
	for _, tc := range []struct {
		hour time.Time
		want int
	}{
		{h0, 3},
		{h1, 1},
	} {
		path := s.PathFor(0, 0, tc.hour)
		n := countRecords(t, path)
		if n != tc.want {
			t.Errorf("File %s: expected %d records, got %d", path, tc.want, n)
		}
	}
}

func TestPacker_FlushesOnBufferFull(t *testing.T) {
	s := packerSite(t)
	p := NewPacker(s, 2)

	h := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	if err := p.Add(sampleRec(h, 1)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	path := s.PathFor(0, 0, h)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Expected no file before the buffer fills")
	}
	if err := p.Add(sampleRec(h, 2)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected the file to exist after the buffer filled: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestPacker_NeverAppendsToExistingFiles(t *testing.T) {
	s := packerSite(t)
	h := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	path := s.PathFor(0, 0, h)

	// A file from an earlier run occupies the coordinate's path.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("earlier run"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p := NewPacker(s, 1)
	if err := p.Add(sampleRec(h, 7)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The old file is untouched; the new records rolled to a sibling.
	old, err := os.ReadFile(path)
	if err != nil || string(old) != "earlier run" {
		t.Errorf("Expected the existing file to be untouched, got %q (%v)", old, err)
	}
	if n := countRecords(t, path+".1"); n != 1 {
		t.Errorf("Expected 1 record in the rolled file, got %d", n)
	}
}

func TestPacker_FailedFlushDoesNotDuplicate(t *testing.T) {
	s := packerSite(t)
	p := NewPacker(s, 2)
	h := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	coord := repo.Coordinate{FlowtypeID: 0, SensorID: 0, Hour: h}

	// 1. The first two records flush cleanly.
	for i := uint16(1); i <= 2; i++ {
		if err := p.Add(sampleRec(h, i)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	// 2. The output stream dies underneath the packer.
	if err := p.writers[coord].Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// 3. The next flush fails and the unwritten records stay pending.
	if err := p.Add(sampleRec(h, 3)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Add(sampleRec(h, 4)); err == nil {
		t.Fatalf("Expected a flush error on the dead stream")
	}
	if n := len(p.pending[coord]); n != 2 {
		t.Fatalf("Expected 2 records pending after the failed flush, got %d", n)
	}

	// 4. With a fresh stream the retry lands each record exactly once.
	delete(p.writers, coord)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	path := s.PathFor(0, 0, h)
	if n := countRecords(t, path); n != 2 {
		t.Errorf("Expected 2 records in the first file, got %d", n)
	}
	if n := countRecords(t, path+".1"); n != 2 {
		t.Errorf("Expected 2 records in the rolled file, got %d", n)
	}
}

func countRecords(t *testing.T, path string) int {
	t.Helper()
	r, err := flowio.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader %s failed: %v", path, err)
	}
	defer r.Close()
	n := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read %s failed: %v", path, err)
		}
		n++
	}
	return n
}
