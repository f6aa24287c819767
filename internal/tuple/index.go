package tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"

	"FlowSieve/internal/model"
)

// arenaBlock is the size of each key-storage block. Keys live for the whole
// run and are freed only when the index itself is collected, so bulk blocks
// beat one allocation per key.
const arenaBlock = 1 << 16

type arena struct {
	cur []byte
}

func (a *arena) hold(b []byte) []byte {
	if cap(a.cur)-len(a.cur) < len(b) {
		size := arenaBlock
		if len(b) > size {
			size = len(b)
		}
		a.cur = make([]byte, 0, size)
	}
	off := len(a.cur)
	a.cur = append(a.cur, b...)
	return a.cur[off:len(a.cur):len(a.cur)]
}

// Index is the tuple membership structure: a red-black tree of fixed-width
// keys compared bytewise. Lookups are exact matches only; ranges and CIDR
// blocks were expanded into individual keys when the index was built.
type Index struct {
	fields  []Field
	offsets []int
	keyLen  int
	tree    *redblacktree.Tree
	mem     arena
}

// New creates an empty index over the given field list.
func New(fields []Field) (*Index, error) {
	if len(fields) == 0 || len(fields) > MaxFields {
		return nil, fmt.Errorf("tuple index needs 1 to %d fields, got %d",
			MaxFields, len(fields))
	}
	ix := &Index{fields: fields}
	for _, f := range fields {
		ix.offsets = append(ix.offsets, ix.keyLen)
		ix.keyLen += f.width()
	}
	ix.tree = redblacktree.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})
	return ix, nil
}

// Fields returns the index's field list in key order.
func (ix *Index) Fields() []Field {
	return ix.fields
}

// Len returns the number of distinct keys stored.
func (ix *Index) Len() int {
	return ix.tree.Size()
}

// insert stores one key. Duplicate inserts are no-ops.
func (ix *Index) insert(key []byte) {
	if _, found := ix.tree.Get(key); found {
		return
	}
	ix.tree.Put(ix.mem.hold(key), nil)
}

// contains reports exact-match membership of a projected key.
func (ix *Index) contains(key []byte) bool {
	_, found := ix.tree.Get(key)
	return found
}

// project fills key with the record's field values in the index layout.
// With swap set, the source and destination address and port fields trade
// places, giving the "reverse" projection.
func (ix *Index) project(r *model.FlowRec, key []byte, swap bool) {
	for i, f := range ix.fields {
		off := ix.offsets[i]
		if swap {
			switch f {
			case FieldSrcIP:
				f = FieldDstIP
			case FieldDstIP:
				f = FieldSrcIP
			case FieldSrcPort:
				f = FieldDstPort
			case FieldDstPort:
				f = FieldSrcPort
			}
		}
		switch f {
		case FieldSrcIP:
			a := r.SrcIP.As16()
			copy(key[off:], a[:])
		case FieldDstIP:
			a := r.DstIP.As16()
			copy(key[off:], a[:])
		case FieldSrcPort:
			binary.BigEndian.PutUint16(key[off:], r.SrcPort)
		case FieldDstPort:
			binary.BigEndian.PutUint16(key[off:], r.DstPort)
		case FieldProto:
			key[off] = r.Proto
		}
	}
}

// Lookup reports whether the record's projection is in the index. dir
// selects the forward projection, the reversed one, or both.
func (ix *Index) Lookup(r *model.FlowRec, dir Direction) bool {
	key := make([]byte, ix.keyLen)
	if dir&Forward != 0 {
		ix.project(r, key, false)
		if ix.contains(key) {
			return true
		}
	}
	if dir&Reverse != 0 {
		ix.project(r, key, true)
		if ix.contains(key) {
			return true
		}
	}
	return false
}

// Checker adapts the index to the checker chain.
func (ix *Index) Checker(dir Direction) model.Checker {
	return &checker{ix: ix, dir: dir}
}

type checker struct {
	ix  *Index
	dir Direction
}

func (c *checker) Check(r *model.FlowRec) model.Verdict {
	if c.ix.Lookup(r, c.dir) {
		return model.Pass
	}
	return model.Fail
}
