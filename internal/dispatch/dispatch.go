// Package dispatch pulls candidate files from a filename source, runs the
// checker chain over every record, and routes records into the pass, fail,
// and all destination groups. It offers a sequential runner and a worker
// pool sharing the same per-file discipline; shutdown is cooperative,
// driven by one shared keep-reading flag that every worker polls between
// records.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"syscall"

	"FlowSieve/internal/check"
	"FlowSieve/internal/flowio"
	"FlowSieve/internal/model"
)

// bufCap is the per-worker record buffer capacity for each group.
const bufCap = 4096

// Options configures one dispatcher run.
type Options struct {
	Chain *check.Chain
	Dests *DestSet

	// NextFile yields candidate file paths. The dispatcher serializes
	// calls behind its own mutex, so the source need not be thread-safe.
	NextFile func() (string, bool)

	// Open opens one input stream; nil means the flowio reader.
	Open func(path string) (model.RecordReader, error)

	// Threads is the worker count; values below 2 select the sequential
	// runner.
	Threads int

	// DryRun, when non-nil, receives candidate paths instead of any file
	// being opened.
	DryRun io.Writer

	// PrintFiles, when non-nil, receives the name of each file as it is
	// processed.
	PrintFiles io.Writer

	// WantStats keeps read counters exact even when no destination needs
	// the records.
	WantStats bool

	// FastFail, when non-nil, reports that every record in the file will
	// fail the chain, letting the per-record checks be skipped. It is an
	// optimization only and never changes the outcome.
	FastFail func(path string) bool
}

// Dispatcher executes one filtering run.
type Dispatcher struct {
	opts    Options
	nextMu  sync.Mutex
	reading atomic.Bool
}

// New validates the options and builds a dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.NextFile == nil {
		return nil, fmt.Errorf("dispatcher has no input source")
	}
	if opts.Dests == nil {
		return nil, fmt.Errorf("dispatcher has no destination set")
	}
	if opts.Chain == nil {
		opts.Chain = &check.Chain{}
	}
	if opts.Chain.Len() == 0 && opts.Dests.Count(GroupAll) == 0 &&
		(opts.Dests.Count(GroupPass) > 0 || opts.Dests.Count(GroupFail) > 0) {
		return nil, fmt.Errorf("no filtering rule given for a pass or fail destination")
	}
	if opts.Open == nil {
		opts.Open = func(path string) (model.RecordReader, error) {
			return flowio.OpenReader(path)
		}
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.Threads > 1 && !opts.Chain.ThreadSafe() {
		log.Printf("Filter chain is not thread-safe; using a single worker")
		opts.Threads = 1
	}
	return &Dispatcher{opts: opts}, nil
}

// Stop clears the keep-reading flag. Workers observe it at their next
// per-record or per-file check, drain their buffers, and return.
func (d *Dispatcher) Stop() {
	d.reading.Store(false)
}

// Run processes every file the source yields and returns the merged
// statistics. A fatal write error ends the run early with the partial
// statistics and a non-nil error.
func (d *Dispatcher) Run() (model.FilterStats, error) {
	d.reading.Store(true)
	if d.opts.Threads < 2 {
		return d.runSequential()
	}
	return d.runThreaded()
}

// next returns the next candidate filename. The filename cursor is the
// only piece of input-side shared state; one mutex covers it.
func (d *Dispatcher) next() (string, bool) {
	d.nextMu.Lock()
	defer d.nextMu.Unlock()
	return d.opts.NextFile()
}

// recomputeOpen re-evaluates whether any output stream remains open
// anywhere, clearing the keep-reading flag when none does. The caller must
// hold no group lock: all group locks are taken in fixed GroupID order and
// released in reverse, which is what makes concurrent recomputes safe.
func (d *Dispatcher) recomputeOpen() {
	open := 0
	for g := 0; g < int(numGroups); g++ {
		d.opts.Dests.groups[g].mu.Lock()
		open += len(d.opts.Dests.groups[g].dests)
	}
	if open == 0 {
		d.reading.Store(false)
	}
	for g := int(numGroups) - 1; g >= 0; g-- {
		d.opts.Dests.groups[g].mu.Unlock()
	}
}

// writeGroup writes recs to every open stream of one group, enforcing the
// group's cutoff. A broken pipe closes only the affected stream; any other
// write error clears the keep-reading flag and is fatal. When a stream was
// closed or the cutoff was hit, the group lock is dropped and recomputeOpen
// decides whether any reading remains worthwhile.
func (d *Dispatcher) writeGroup(g GroupID, recs []model.FlowRec) error {
	grp := &d.opts.Dests.groups[g]
	grp.mu.Lock()

	if len(grp.dests) == 0 {
		grp.mu.Unlock()
		return nil
	}

	closeAfter := false
	recompute := false
	if grp.max > 0 {
		if grp.written >= grp.max {
			grp.mu.Unlock()
			return nil
		}
		if grp.written+uint64(len(recs)) >= grp.max {
			recs = recs[:grp.max-grp.written]
			closeAfter = true
			recompute = true
		}
	}

	for i := 0; i < len(grp.dests); {
		dest := grp.dests[i]
		removed := false
		for j := range recs {
			if err := dest.stream.Write(&recs[j]); err != nil {
				if errors.Is(err, syscall.EPIPE) {
					// the consumer went away; close just this stream
					grp.closeDestLocked(i)
					removed = true
					recompute = true
					break
				}
				log.Printf("Fatal write error on %s destination %s: %v", g, dest.name, err)
				d.reading.Store(false)
				grp.mu.Unlock()
				return fmt.Errorf("write to %s destination %s: %w", g, dest.name, err)
			}
		}
		if !removed {
			i++
		}
	}
	grp.written += uint64(len(recs))

	if closeAfter {
		grp.closeGroupLocked()
	}

	grp.mu.Unlock()
	if recompute {
		d.recomputeOpen()
	}
	return nil
}
