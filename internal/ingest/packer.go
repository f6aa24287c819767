package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"FlowSieve/internal/flowio"
	"FlowSieve/internal/model"
	"FlowSieve/internal/repo"
	"FlowSieve/internal/site"
)

// defaultFlushRecords is the per-coordinate buffer size before records are
// forced to disk.
const defaultFlushRecords = 512

// Packer files incoming records into the repository by their coordinate.
// Records buffer per coordinate and flush on buffer-full or Close; there is
// no durability promise beyond that.
type Packer struct {
	site    *site.Site
	flushAt int

	mu      sync.Mutex
	writers map[repo.Coordinate]*flowio.Writer
	pending map[repo.Coordinate][]model.FlowRec
}

// NewPacker creates a packer writing under the site's repository root.
func NewPacker(s *site.Site, flushRecords int) *Packer {
	if flushRecords <= 0 {
		flushRecords = defaultFlushRecords
	}
	return &Packer{
		site:    s,
		flushAt: flushRecords,
		writers: make(map[repo.Coordinate]*flowio.Writer),
		pending: make(map[repo.Coordinate][]model.FlowRec),
	}
}

// Add buffers one record under its repository coordinate.
func (p *Packer) Add(rec model.FlowRec) error {
	coord := repo.Coordinate{
		FlowtypeID: rec.FlowtypeID,
		SensorID:   rec.SensorID,
		Hour:       rec.StartTime.UTC().Truncate(time.Hour),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending[coord] = append(p.pending[coord], rec)
	if len(p.pending[coord]) >= p.flushAt {
		return p.flushLocked(coord)
	}
	return nil
}

func (p *Packer) flushLocked(coord repo.Coordinate) error {
	recs := p.pending[coord]
	if len(recs) == 0 {
		return nil
	}

	w, ok := p.writers[coord]
	if !ok {
		var err error
		w, err = p.openWriter(coord)
		if err != nil {
			return err
		}
		p.writers[coord] = w
	}

	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			// records before i are on disk; keep only the rest so a
			// retry cannot duplicate them
			p.pending[coord] = recs[i:]
			return err
		}
	}
	p.pending[coord] = recs[:0]
	return nil
}

// openWriter creates the coordinate's file. A file left over from an
// earlier run is never appended to; the packer rolls to the first free
// numbered sibling instead.
func (p *Packer) openWriter(coord repo.Coordinate) (*flowio.Writer, error) {
	path := p.site.PathFor(coord.FlowtypeID, coord.SensorID, coord.Hour)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}

	candidate := path
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s.%d", path, n)
	}
	return flowio.Create(candidate)
}

// Close flushes every pending buffer and closes the open files.
func (p *Packer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for coord := range p.pending {
		if err := p.flushLocked(coord); err != nil && first == nil {
			first = err
		}
	}
	for _, w := range p.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.writers = make(map[repo.Coordinate]*flowio.Writer)
	return first
}
