package tuple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// Build creates an index over fields and fills it from the delimited rows
// in r. Every cell expands to its constituent single values: a CIDR block
// becomes one key per covered address, an integer list or range one key
// per integer, and the Cartesian product of the per-field expansions is
// inserted key by key. Parse errors name the offending field and line.
func Build(fields []Field, r io.Reader, delim byte) (*Index, error) {
	ix, err := New(fields)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	first := true
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cells := strings.Split(line, string(delim))
		// a trailing delimiter leaves one empty cell; drop it
		if n := len(cells); n > 0 && strings.TrimSpace(cells[n-1]) == "" {
			cells = cells[:n-1]
		}
		if len(cells) != len(fields) {
			return nil, fmt.Errorf("tuple file line %d: got %d fields, want %d",
				lineno, len(cells), len(fields))
		}

		if first {
			first = false
			if isTitleRow(cells) {
				continue
			}
		}

		if err := ix.addRow(cells, lineno); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tuple file: %w", err)
	}
	return ix, nil
}

// isTitleRow decides whether the first row is a column-title line: any
// cell that, after trimming leading digits and whitespace, matches a known
// field name marks the row as a title.
func isTitleRow(cells []string) bool {
	for _, cell := range cells {
		trimmed := strings.TrimLeft(cell, "0123456789 \t")
		if _, ok := parseFieldName(trimmed); ok {
			return true
		}
	}
	return false
}

// addRow inserts the Cartesian product of the row's per-field expansions.
// The key is built field by field; when the last field's value lands, the
// completed key goes into the tree.
func (ix *Index) addRow(cells []string, lineno int) error {
	key := make([]byte, ix.keyLen)
	return ix.fillField(0, cells, key, lineno)
}

func (ix *Index) fillField(i int, cells []string, key []byte, lineno int) error {
	if i == len(ix.fields) {
		ix.insert(key)
		return nil
	}

	f := ix.fields[i]
	off := ix.offsets[i]
	cell := strings.TrimSpace(cells[i])
	fail := func(err error) error {
		return fmt.Errorf("tuple file line %d, field %s: %w", lineno, f, err)
	}

	switch f {
	case FieldSrcIP, FieldDstIP:
		err := expandAddrs(cell, func(addr netip.Addr) error {
			a := addr.As16()
			copy(key[off:], a[:])
			return ix.fillField(i+1, cells, key, lineno)
		})
		if err != nil {
			return fail(err)
		}
	case FieldSrcPort, FieldDstPort:
		err := expandInts(cell, 65535, func(v uint64) error {
			binary.BigEndian.PutUint16(key[off:], uint16(v))
			return ix.fillField(i+1, cells, key, lineno)
		})
		if err != nil {
			return fail(err)
		}
	case FieldProto:
		err := expandInts(cell, 255, func(v uint64) error {
			key[off] = uint8(v)
			return ix.fillField(i+1, cells, key, lineno)
		})
		if err != nil {
			return fail(err)
		}
	}
	return nil
}

// expandAddrs calls fn for every address the cell covers: a single address,
// or each address of a CIDR block.
func expandAddrs(cell string, fn func(netip.Addr) error) error {
	if strings.Contains(cell, "/") {
		pfx, err := netip.ParsePrefix(cell)
		if err != nil {
			return fmt.Errorf("invalid CIDR block %q", cell)
		}
		pfx = pfx.Masked()
		for addr := pfx.Addr(); pfx.Contains(addr); addr = addr.Next() {
			if err := fn(addr); err != nil {
				return err
			}
		}
		return nil
	}
	addr, err := netip.ParseAddr(cell)
	if err != nil {
		return fmt.Errorf("invalid address %q", cell)
	}
	return fn(addr)
}

// expandInts calls fn for every integer the cell covers. A cell is a
// comma-separated list of single values and inclusive "lo-hi" ranges.
func expandInts(cell string, max uint64, fn func(uint64) error) error {
	for _, part := range strings.Split(cell, ",") {
		part = strings.TrimSpace(part)
		lo, hi, err := parseIntRange(part, max)
		if err != nil {
			return err
		}
		for v := lo; v <= hi; v++ {
			if err := fn(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseIntRange(s string, max uint64) (lo, hi uint64, err error) {
	loStr, hiStr, isRange := strings.Cut(s, "-")
	lo, err = strconv.ParseUint(strings.TrimSpace(loStr), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", s)
	}
	hi = lo
	if isRange {
		hi, err = strconv.ParseUint(strings.TrimSpace(hiStr), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range %q", s)
		}
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("range %q is backwards", s)
	}
	if hi > max {
		return 0, 0, fmt.Errorf("value %d out of range (maximum %d)", hi, max)
	}
	return lo, hi, nil
}
