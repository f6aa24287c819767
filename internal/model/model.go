package model

import (
	"net/netip"
	"time"
)

// FlowRec is one summarized network conversation as stored in the
// repository. Records are plain values: the dispatcher copies them into
// per-destination buffers, so nothing may hold a pointer to one past a
// single checker evaluation.
type FlowRec struct {
	SrcIP     netip.Addr
	DstIP     netip.Addr
	SrcPort   uint16
	DstPort   uint16
	Proto     uint8
	TCPFlags  uint8
	Packets   uint64
	Bytes     uint64
	StartTime time.Time
	Duration  time.Duration

	// Repository coordinates of the record, as small site-assigned ids.
	FlowtypeID uint16
	SensorID   uint16
}

// EndTime returns the time the flow ended.
func (r *FlowRec) EndTime() time.Time {
	return r.StartTime.Add(r.Duration)
}

// RecCount accumulates flow, packet, and byte totals.
type RecCount struct {
	Flows uint64
	Pkts  uint64
	Bytes uint64
}

// Add counts one record.
func (c *RecCount) Add(r *FlowRec) {
	c.Flows++
	c.Pkts += r.Packets
	c.Bytes += r.Bytes
}

// FilterStats holds the per-run counters. Each worker keeps its own copy;
// the dispatcher merges them by addition when the run finishes.
type FilterStats struct {
	Files uint32
	Read  RecCount
	Pass  RecCount
}

// Merge adds the counters from o into s.
func (s *FilterStats) Merge(o *FilterStats) {
	s.Files += o.Files
	s.Read.Flows += o.Read.Flows
	s.Read.Pkts += o.Read.Pkts
	s.Read.Bytes += o.Read.Bytes
	s.Pass.Flows += o.Pass.Flows
	s.Pass.Pkts += o.Pass.Pkts
	s.Pass.Bytes += o.Pass.Bytes
}
