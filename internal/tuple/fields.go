// Package tuple implements point-lookup membership over concatenated
// field projections of a flow record. Rows from a text file expand into
// fixed-width binary keys held in a red-black tree; a record matches when
// its own projection is present, tested forward and/or with the address
// and port pairs swapped.
package tuple

import (
	"fmt"
	"strings"
)

// Field identifies one record field that may participate in a tuple key.
type Field uint8

const (
	FieldSrcIP Field = iota
	FieldDstIP
	FieldSrcPort
	FieldDstPort
	FieldProto
)

// MaxFields is the largest tuple the index supports.
const MaxFields = 5

const (
	addrWidth  = 16 // addresses are stored v6-mapped
	portWidth  = 2
	protoWidth = 1
)

func (f Field) width() int {
	switch f {
	case FieldSrcIP, FieldDstIP:
		return addrWidth
	case FieldSrcPort, FieldDstPort:
		return portWidth
	default:
		return protoWidth
	}
}

func (f Field) String() string {
	switch f {
	case FieldSrcIP:
		return "sip"
	case FieldDstIP:
		return "dip"
	case FieldSrcPort:
		return "sport"
	case FieldDstPort:
		return "dport"
	case FieldProto:
		return "protocol"
	}
	return "unknown"
}

// parseFieldName resolves one field name or alias. It is also used for
// title-row detection, so unknown names are not an error here.
func parseFieldName(name string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sip", "srcip", "src-addr", "saddress", "source-address":
		return FieldSrcIP, true
	case "dip", "dstip", "dst-addr", "daddress", "dest-address":
		return FieldDstIP, true
	case "sport", "src-port", "source-port":
		return FieldSrcPort, true
	case "dport", "dst-port", "dest-port":
		return FieldDstPort, true
	case "proto", "protocol":
		return FieldProto, true
	}
	return 0, false
}

// ParseFields parses an ordered field list. The list must be a
// non-repeating subset of {sip, dip, sport, dport, protocol} of size 1
// through 5.
func ParseFields(names []string) ([]Field, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no tuple fields given")
	}
	if len(names) > MaxFields {
		return nil, fmt.Errorf("too many tuple fields: got %d, maximum is %d",
			len(names), MaxFields)
	}
	fields := make([]Field, 0, len(names))
	seen := [MaxFields]bool{}
	for _, name := range names {
		f, ok := parseFieldName(name)
		if !ok {
			return nil, fmt.Errorf("unknown tuple field %q", name)
		}
		if seen[f] {
			return nil, fmt.Errorf("tuple field %q listed twice", name)
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// Direction selects which projections Lookup tests.
type Direction uint8

const (
	Forward Direction = 1 << iota
	Reverse
)

// Both tests the forward projection first, then the reversed one.
const Both = Forward | Reverse

// ParseDirection parses a direction switch value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward":
		return Forward, nil
	case "reverse":
		return Reverse, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("invalid direction %q: want forward, reverse, or both", s)
}
