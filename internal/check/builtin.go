// Package check holds the built-in per-record field tests and the checker
// chain that composes them with the tuple matcher and external filters.
package check

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"FlowSieve/internal/model"
)

// Builtin is the single checker covering every configured field test. A
// record passes only when every test holds; the first failing test rejects
// it. With no tests configured the checker is inactive and must not be
// registered.
type Builtin struct {
	tests []func(*model.FlowRec) bool
}

// Active reports whether any test has been configured.
func (b *Builtin) Active() bool {
	return len(b.tests) > 0
}

// Check runs every configured test against the record.
func (b *Builtin) Check(r *model.FlowRec) model.Verdict {
	for _, test := range b.tests {
		if !test(r) {
			return model.Fail
		}
	}
	return model.Pass
}

// SetSTime requires the flow's start time to fall in [lo, hi].
func (b *Builtin) SetSTime(lo, hi time.Time) {
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return !r.StartTime.Before(lo) && !r.StartTime.After(hi)
	})
}

// SetETime requires the flow's end time to fall in [lo, hi].
func (b *Builtin) SetETime(lo, hi time.Time) {
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		end := r.EndTime()
		return !end.Before(lo) && !end.After(hi)
	})
}

// SetDuration requires the flow's duration to fall in [lo, hi].
func (b *Builtin) SetDuration(lo, hi time.Duration) {
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return r.Duration >= lo && r.Duration <= hi
	})
}

// SetSPorts accepts flows whose source port is in the set.
func (b *Builtin) SetSPorts(spec string) error {
	ports, err := parseNumberSet(spec, 65535)
	if err != nil {
		return fmt.Errorf("invalid sport list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return ports.get(uint(r.SrcPort))
	})
	return nil
}

// SetDPorts accepts flows whose destination port is in the set.
func (b *Builtin) SetDPorts(spec string) error {
	ports, err := parseNumberSet(spec, 65535)
	if err != nil {
		return fmt.Errorf("invalid dport list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return ports.get(uint(r.DstPort))
	})
	return nil
}

// SetAPorts accepts flows with either port in the set.
func (b *Builtin) SetAPorts(spec string) error {
	ports, err := parseNumberSet(spec, 65535)
	if err != nil {
		return fmt.Errorf("invalid aport list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return ports.get(uint(r.SrcPort)) || ports.get(uint(r.DstPort))
	})
	return nil
}

// SetProtocols accepts flows whose IP protocol is in the set.
func (b *Builtin) SetProtocols(spec string) error {
	protos, err := parseNumberSet(spec, 255)
	if err != nil {
		return fmt.Errorf("invalid protocol list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return protos.get(uint(r.Proto))
	})
	return nil
}

// SetBytes accepts flows whose byte count is in the range.
func (b *Builtin) SetBytes(spec string) error {
	lo, hi, err := ParseCountRange(spec)
	if err != nil {
		return fmt.Errorf("invalid bytes range: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return r.Bytes >= lo && r.Bytes <= hi
	})
	return nil
}

// SetPackets accepts flows whose packet count is in the range.
func (b *Builtin) SetPackets(spec string) error {
	lo, hi, err := ParseCountRange(spec)
	if err != nil {
		return fmt.Errorf("invalid packets range: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return r.Packets >= lo && r.Packets <= hi
	})
	return nil
}

// SetBytesPerPacket accepts flows whose bytes-per-packet ratio is in the
// decimal range.
func (b *Builtin) SetBytesPerPacket(spec string) error {
	lo, hi, err := parseDecimalRange(spec)
	if err != nil {
		return fmt.Errorf("invalid bytes-per-packet range: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		if r.Packets == 0 {
			return false
		}
		ratio := float64(r.Bytes) / float64(r.Packets)
		return ratio >= lo && ratio <= hi
	})
	return nil
}

// SetSAddress accepts flows whose source address is covered by the CIDR
// list, or not covered when negate is set.
func (b *Builtin) SetSAddress(spec string, negate bool) error {
	prefixes, err := parsePrefixList(spec)
	if err != nil {
		return fmt.Errorf("invalid saddress list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return containsAddr(prefixes, r.SrcIP) != negate
	})
	return nil
}

// SetDAddress accepts flows whose destination address is covered by the
// CIDR list, or not covered when negate is set.
func (b *Builtin) SetDAddress(spec string, negate bool) error {
	prefixes, err := parsePrefixList(spec)
	if err != nil {
		return fmt.Errorf("invalid daddress list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		return containsAddr(prefixes, r.DstIP) != negate
	})
	return nil
}

// SetAnyAddress accepts flows with either address covered by the CIDR list.
func (b *Builtin) SetAnyAddress(spec string, negate bool) error {
	prefixes, err := parsePrefixList(spec)
	if err != nil {
		return fmt.Errorf("invalid anyaddress list: %w", err)
	}
	b.tests = append(b.tests, func(r *model.FlowRec) bool {
		hit := containsAddr(prefixes, r.SrcIP) || containsAddr(prefixes, r.DstIP)
		return hit != negate
	})
	return nil
}

type bitmap []uint64

func newBitmap(n uint) bitmap {
	return make(bitmap, (n+64)/64)
}

func (m bitmap) set(i uint) {
	m[i/64] |= 1 << (i % 64)
}

func (m bitmap) get(i uint) bool {
	return m[i/64]&(1<<(i%64)) != 0
}

// parseNumberSet parses a comma-separated list of integers and inclusive
// "lo-hi" ranges into a membership bitmap.
func parseNumberSet(spec string, max uint) (bitmap, error) {
	m := newBitmap(max)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		loStr, hiStr, isRange := strings.Cut(part, "-")
		lo, err := strconv.ParseUint(loStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", part)
		}
		hi := lo
		if isRange {
			hi, err = strconv.ParseUint(hiStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad range %q", part)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("range %q is backwards", part)
		}
		if hi > uint64(max) {
			return nil, fmt.Errorf("value %d out of range (maximum %d)", hi, max)
		}
		for v := lo; v <= hi; v++ {
			m.set(uint(v))
		}
	}
	return m, nil
}

// ParseCountRange parses "N" (exactly N), "N-M" (inclusive), or "N-"
// (N or more).
func ParseCountRange(spec string) (lo, hi uint64, err error) {
	loStr, hiStr, isRange := strings.Cut(spec, "-")
	lo, err = strconv.ParseUint(strings.TrimSpace(loStr), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad count %q", spec)
	}
	switch {
	case !isRange:
		hi = lo
	case strings.TrimSpace(hiStr) == "":
		hi = ^uint64(0)
	default:
		hi, err = strconv.ParseUint(strings.TrimSpace(hiStr), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad range %q", spec)
		}
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("range %q is backwards", spec)
	}
	return lo, hi, nil
}

func parseDecimalRange(spec string) (lo, hi float64, err error) {
	loStr, hiStr, isRange := strings.Cut(spec, "-")
	lo, err = strconv.ParseFloat(strings.TrimSpace(loStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad value %q", spec)
	}
	switch {
	case !isRange:
		hi = lo
	case strings.TrimSpace(hiStr) == "":
		hi = float64(^uint64(0))
	default:
		hi, err = strconv.ParseFloat(strings.TrimSpace(hiStr), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad range %q", spec)
		}
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("range %q is backwards", spec)
	}
	return lo, hi, nil
}

// parsePrefixList parses a comma-separated list of addresses and CIDR
// blocks; a bare address is its own single-address block.
func parsePrefixList(spec string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "/") {
			pfx, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("bad CIDR block %q", part)
			}
			prefixes = append(prefixes, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("bad address %q", part)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, pfx := range prefixes {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}
