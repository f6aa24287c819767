package dispatch

import (
	"fmt"
	"sync"

	"FlowSieve/internal/model"
)

// GroupID names one of the three destination groups.
type GroupID int

const (
	GroupPass GroupID = iota
	GroupFail
	GroupAll
	numGroups
)

func (g GroupID) String() string {
	switch g {
	case GroupPass:
		return "pass"
	case GroupFail:
		return "fail"
	case GroupAll:
		return "all"
	}
	return "unknown"
}

// destination is one open output stream within a group.
type destination struct {
	name   string
	stream model.RecordWriter
}

// destGroup owns the streams of one group, the group's written-record
// counter, and the optional cutoff. The mutex covers all three.
type destGroup struct {
	mu      sync.Mutex
	dests   []*destination
	max     uint64 // 0 means no cutoff
	written uint64
}

// DestSet is the fixed set of destination groups for one run. Group locks
// are always acquired in GroupID order when more than one is needed.
type DestSet struct {
	groups   [numGroups]destGroup
	terminal bool
}

// NewDestSet returns an empty destination set.
func NewDestSet() *DestSet {
	return &DestSet{}
}

// Add binds an output stream to a group. terminal marks a stream writing
// to standard output; at most one such stream may exist across all groups.
func (ds *DestSet) Add(g GroupID, name string, w model.RecordWriter, terminal bool) error {
	if terminal {
		if ds.terminal {
			return fmt.Errorf("multiple destinations claim the terminal; only one may")
		}
		ds.terminal = true
	}
	grp := &ds.groups[g]
	grp.mu.Lock()
	grp.dests = append(grp.dests, &destination{name: name, stream: w})
	grp.mu.Unlock()
	return nil
}

// SetMaxRecords sets the group's cutoff: the group closes after writing
// max records. Zero means unlimited.
func (ds *DestSet) SetMaxRecords(g GroupID, max uint64) {
	grp := &ds.groups[g]
	grp.mu.Lock()
	grp.max = max
	grp.mu.Unlock()
}

// Count returns the number of open streams in a group.
func (ds *DestSet) Count(g GroupID) int {
	grp := &ds.groups[g]
	grp.mu.Lock()
	n := len(grp.dests)
	grp.mu.Unlock()
	return n
}

// Written returns the number of records the group has accepted.
func (ds *DestSet) Written(g GroupID) uint64 {
	grp := &ds.groups[g]
	grp.mu.Lock()
	n := grp.written
	grp.mu.Unlock()
	return n
}

// CloseAll closes every remaining stream, returning the first error.
func (ds *DestSet) CloseAll() error {
	var first error
	for g := range ds.groups {
		grp := &ds.groups[g]
		grp.mu.Lock()
		for _, dest := range grp.dests {
			if err := dest.stream.Close(); err != nil && first == nil {
				first = fmt.Errorf("close %s: %w", dest.name, err)
			}
		}
		grp.dests = nil
		grp.mu.Unlock()
	}
	return first
}

// closeDestLocked removes and closes one stream. The group lock is held.
func (grp *destGroup) closeDestLocked(i int) {
	dest := grp.dests[i]
	dest.stream.Close()
	grp.dests = append(grp.dests[:i], grp.dests[i+1:]...)
}

// closeGroupLocked closes every stream in the group. The lock is held.
func (grp *destGroup) closeGroupLocked() {
	for _, dest := range grp.dests {
		dest.stream.Close()
	}
	grp.dests = nil
}
