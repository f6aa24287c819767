package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"FlowSieve/internal/model"
)

// recBufs holds one worker's private record buffers, one per destination
// group that has streams. Buffering batches the group-lock acquisitions;
// the buffers flush on fill, at end of file processing, and on drain.
type recBufs struct {
	bufs [numGroups][]model.FlowRec
}

func newRecBufs(ds *DestSet) *recBufs {
	b := &recBufs{}
	for g := GroupID(0); g < numGroups; g++ {
		if ds.Count(g) > 0 {
			b.bufs[g] = make([]model.FlowRec, 0, bufCap)
		}
	}
	return b
}

func (b *recBufs) add(d *Dispatcher, g GroupID, rec *model.FlowRec) error {
	b.bufs[g] = append(b.bufs[g], *rec)
	if len(b.bufs[g]) == bufCap {
		return b.flush(d, g)
	}
	return nil
}

func (b *recBufs) flush(d *Dispatcher, g GroupID) error {
	if len(b.bufs[g]) == 0 {
		return nil
	}
	err := d.writeGroup(g, b.bufs[g])
	b.bufs[g] = b.bufs[g][:0]
	return err
}

// flushAll drains every partial buffer; it runs even when the keep-reading
// flag has been cleared, since buffered records must still be written.
func (b *recBufs) flushAll(d *Dispatcher) error {
	var first error
	for g := GroupID(0); g < numGroups; g++ {
		if err := b.flush(d, g); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// runSequential is the single-threaded strategy: records are written to
// their destinations immediately, preserving global input order.
func (d *Dispatcher) runSequential() (model.FilterStats, error) {
	var stats model.FilterStats
	for d.reading.Load() {
		path, ok := d.next()
		if !ok {
			break
		}
		if err := d.processFile(path, &stats, nil); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// runThreaded fans files across the worker pool. Each worker keeps private
// stats and record buffers; stats merge by addition when the pool drains.
// Ordering between workers' buffers within one destination is unspecified.
func (d *Dispatcher) runThreaded() (model.FilterStats, error) {
	type result struct {
		stats model.FilterStats
		err   error
	}
	results := make([]result, d.opts.Threads)

	var wg sync.WaitGroup
	wg.Add(d.opts.Threads)
	for i := range results {
		go func(res *result) {
			defer wg.Done()
			bufs := newRecBufs(d.opts.Dests)
			for d.reading.Load() {
				path, ok := d.next()
				if !ok {
					break
				}
				if err := d.processFile(path, &res.stats, bufs); err != nil {
					res.err = err
					break
				}
			}
			if err := bufs.flushAll(d); err != nil && res.err == nil {
				res.err = err
			}
		}(&results[i])
	}
	wg.Wait()

	var stats model.FilterStats
	var first error
	for i := range results {
		stats.Merge(&results[i].stats)
		if first == nil {
			first = results[i].err
		}
	}
	return stats, first
}

// processFile runs the shared per-file loop: count the record, feed the
// all group, run the chain, route by verdict. With bufs nil the writes are
// immediate (sequential mode); otherwise records land in the worker's
// buffers. Failure to open or read one input file is logged and skipped;
// only write errors are fatal.
func (d *Dispatcher) processFile(path string, stats *model.FilterStats, bufs *recBufs) error {
	if d.opts.DryRun != nil {
		fmt.Fprintln(d.opts.DryRun, path)
		return nil
	}
	if !d.reading.Load() {
		return nil
	}
	if d.opts.PrintFiles != nil {
		fmt.Fprintln(d.opts.PrintFiles, path)
	}

	in, err := d.opts.Open(path)
	if err != nil {
		log.Printf("Skipping input %s: %v", path, err)
		return nil
	}
	defer in.Close()
	stats.Files++

	failAll := d.opts.FastFail != nil && d.opts.FastFail(path)
	if failAll && d.opts.Dests.Count(GroupAll) == 0 &&
		d.opts.Dests.Count(GroupFail) == 0 && !d.opts.WantStats {
		// nothing consumes these records and nobody is counting
		return nil
	}

	for d.reading.Load() {
		rec, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			break
		}

		stats.Read.Add(&rec)

		if err := d.route(GroupAll, &rec, bufs); err != nil {
			return err
		}

		verdict := model.Fail
		if !failAll {
			verdict = d.opts.Chain.Run(&rec)
		}
		if verdict == model.Fail {
			if err := d.route(GroupFail, &rec, bufs); err != nil {
				return err
			}
		} else {
			stats.Pass.Add(&rec)
			if err := d.route(GroupPass, &rec, bufs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) route(g GroupID, rec *model.FlowRec, bufs *recBufs) error {
	if bufs != nil {
		if bufs.bufs[g] == nil {
			return nil
		}
		return bufs.add(d, g, rec)
	}
	if d.opts.Dests.Count(g) == 0 {
		return nil
	}
	return d.writeGroup(g, []model.FlowRec{*rec})
}
