// Package repo walks the time-and-sensor-partitioned file repository,
// producing the ordered list of candidate files for one run. The walk order
// is fixed: sensor varies fastest, then class/type, then hour.
package repo

import (
	"fmt"
	"io"
	"os"
	"time"

	"FlowSieve/internal/site"
)

// Coordinate identifies exactly one repository file.
type Coordinate struct {
	FlowtypeID uint16
	SensorID   uint16
	Hour       time.Time
}

// Selection is the portion of the repository one run reads.
type Selection struct {
	// Flowtypes lists the selected class/type pairs; Sensors holds the
	// selected sensor ids for each, in parallel.
	Flowtypes []uint16
	Sensors   [][]uint16

	// Start and End bound the hours to visit, inclusive. Both are
	// truncated to whole hours.
	Start time.Time
	End   time.Time

	// Missing, when non-nil, receives one "Missing <path>" line for every
	// in-range coordinate whose file does not exist.
	Missing io.Writer
}

type enumState int8

const (
	stateNotStarted enumState = iota
	stateInitialized
	stateAdvanced
)

// Enumerator produces the selection's candidate files one at a time. It is
// restartable in the sense that no filesystem state is held between calls;
// it is not safe for concurrent use without external locking.
type Enumerator struct {
	site  *site.Site
	sel   Selection
	state enumState

	ftIdx  int
	senIdx int
	hour   time.Time

	// stat is replaceable for tests.
	stat func(path string) bool
}

// NewEnumerator validates the selection and prepares a walk over it.
func NewEnumerator(s *site.Site, sel Selection) (*Enumerator, error) {
	if len(sel.Flowtypes) == 0 {
		return nil, fmt.Errorf("selection names no class/type pairs")
	}
	if len(sel.Sensors) != len(sel.Flowtypes) {
		return nil, fmt.Errorf("selection has %d sensor lists for %d flowtypes",
			len(sel.Sensors), len(sel.Flowtypes))
	}
	for i, sensors := range sel.Sensors {
		if len(sensors) == 0 {
			ft, _ := s.FlowtypeByID(sel.Flowtypes[i])
			return nil, fmt.Errorf("no sensors selected for %s", ft.Name())
		}
	}
	sel.Start = sel.Start.UTC().Truncate(time.Hour)
	sel.End = sel.End.UTC().Truncate(time.Hour)
	if sel.End.Before(sel.Start) {
		return nil, fmt.Errorf("end date %s precedes start date %s",
			sel.End.Format(hourFormat), sel.Start.Format(hourFormat))
	}

	return &Enumerator{
		site:  s,
		sel:   sel,
		state: stateInitialized,
		hour:  sel.Start,
		stat:  fileExists,
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// advance moves to the next coordinate: sensor first, rolling into
// class/type, rolling into hour. The first call after construction leaves
// the counters where they are so the initial coordinate is visited.
func (e *Enumerator) advance() bool {
	if e.state < stateAdvanced {
		e.state = stateAdvanced
		return true
	}

	if e.hour.After(e.sel.End) {
		return false
	}

	e.senIdx++
	if e.senIdx < len(e.sel.Sensors[e.ftIdx]) {
		return true
	}
	e.senIdx = 0

	if len(e.sel.Flowtypes) > 1 {
		e.ftIdx++
		if e.ftIdx < len(e.sel.Flowtypes) {
			return true
		}
		e.ftIdx = 0
	}

	e.hour = e.hour.Add(time.Hour)
	return !e.hour.After(e.sel.End)
}

// NextCoordinate returns the next coordinate in the walk regardless of
// whether its file exists. It reports false when the selection is exhausted.
func (e *Enumerator) NextCoordinate() (Coordinate, bool) {
	if !e.advance() {
		return Coordinate{}, false
	}
	return Coordinate{
		FlowtypeID: e.sel.Flowtypes[e.ftIdx],
		SensorID:   e.sel.Sensors[e.ftIdx][e.senIdx],
		Hour:       e.hour,
	}, true
}

// Next returns the path of the next existing repository file. Coordinates
// whose file is absent are skipped, optionally reported to sel.Missing, and
// the walk continues; false means the selection is exhausted. A compressed
// sibling ("<path>.gz") satisfies a coordinate whose plain file is missing.
func (e *Enumerator) Next() (string, bool) {
	for e.advance() {
		path := e.site.PathFor(
			e.sel.Flowtypes[e.ftIdx],
			e.sel.Sensors[e.ftIdx][e.senIdx],
			e.hour,
		)
		if e.stat(path) {
			return path, true
		}
		if e.stat(path + ".gz") {
			return path + ".gz", true
		}
		if e.sel.Missing != nil {
			fmt.Fprintf(e.sel.Missing, "Missing %s\n", path)
		}
	}
	return "", false
}

// CountUpperBound estimates the number of files left to visit, assuming a
// file exists at every remaining coordinate. It never undercounts.
func (e *Enumerator) CountUpperBound() int {
	perHour := 0
	for _, sensors := range e.sel.Sensors {
		perHour += len(sensors)
	}

	hours := int(e.sel.End.Sub(e.hour)/time.Hour) + 1
	if hours < 0 {
		return 0
	}
	count := perHour * hours

	if e.state < stateAdvanced {
		return count
	}

	// Drop what has already been visited within the current hour.
	for i := 0; i < e.ftIdx; i++ {
		count -= len(e.sel.Sensors[i])
	}
	count -= e.senIdx
	return count
}
