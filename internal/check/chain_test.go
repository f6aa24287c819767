package check

import (
	"net/netip"
	"testing"
	"time"

	"FlowSieve/internal/model"
)

// countingChecker records how often it ran and returns a fixed verdict.
type countingChecker struct {
	verdict model.Verdict
	calls   int
}

func (c *countingChecker) Check(r *model.FlowRec) model.Verdict {
	c.calls++
	return c.verdict
}

func TestChain_ShortCircuitsOnFail(t *testing.T) {
	first := &countingChecker{verdict: model.Fail}
	second := &countingChecker{verdict: model.Pass}
	chain := &Chain{}
	chain.Append(first)
	chain.Append(second)

	rec := &model.FlowRec{}
	if v := chain.Run(rec); v != model.Fail {
		t.Errorf("Expected Fail, got %v", v)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Errorf("Expected the chain to stop after the failing checker, calls were %d/%d",
			first.calls, second.calls)
	}
}

func TestChain_PassNowSkipsLaterCheckers(t *testing.T) {
	first := &countingChecker{verdict: model.PassNow}
	second := &countingChecker{verdict: model.Fail}
	chain := &Chain{}
	chain.Append(first)
	chain.Append(second)

	if v := chain.Run(&model.FlowRec{}); v != model.PassNow {
		t.Errorf("Expected PassNow, got %v", v)
	}
	if second.calls != 0 {
		t.Errorf("Expected PassNow to stop the chain, second ran %d times", second.calls)
	}
}

// declaringChecker opts in to the thread-safety declaration.
type declaringChecker struct{ safe bool }

func (c *declaringChecker) Check(r *model.FlowRec) model.Verdict { return model.Pass }

func (c *declaringChecker) ThreadSafe() bool { return c.safe }

func TestChain_ThreadSafe(t *testing.T) {
	chain := &Chain{}
	chain.Append(&countingChecker{verdict: model.Pass})
	if !chain.ThreadSafe() {
		t.Errorf("Expected a chain of non-declaring checkers to be thread-safe")
	}
	chain.Append(&declaringChecker{safe: true})
	if !chain.ThreadSafe() {
		t.Errorf("Expected a safe declaration to keep the chain thread-safe")
	}
	chain.Append(&declaringChecker{safe: false})
	if chain.ThreadSafe() {
		t.Errorf("Expected one unsafe checker to mark the whole chain unsafe")
	}
}

func TestChain_VerdictIndependentOfOrder(t *testing.T) {
	ports := &Builtin{}
	if err := ports.SetDPorts("80,443"); err != nil {
		t.Fatalf("SetDPorts failed: %v", err)
	}
	protos := &Builtin{}
	if err := protos.SetProtocols("6"); err != nil {
		t.Fatalf("SetProtocols failed: %v", err)
	}

	forward := &Chain{}
	forward.Append(ports)
	forward.Append(protos)
	backward := &Chain{}
	backward.Append(protos)
	backward.Append(ports)

	recs := []model.FlowRec{
		{Proto: 6, DstPort: 80},
		{Proto: 6, DstPort: 22},
		{Proto: 17, DstPort: 443},
		{Proto: 17, DstPort: 22},
	}
	for i := range recs {
		a := forward.Run(&recs[i])
		b := backward.Run(&recs[i])
		if a != b {
			t.Errorf("Record %d: verdicts differ by order, %v vs %v", i, a, b)
		}
	}
}

func TestChain_EmptyChainPasses(t *testing.T) {
	chain := &Chain{}
	if v := chain.Run(&model.FlowRec{}); v != model.Pass {
		t.Errorf("Expected an empty chain to pass, got %v", v)
	}
}

func TestBuiltin_AllTestsMustHold(t *testing.T) {
	b := &Builtin{}
	if b.Active() {
		t.Fatalf("Expected a fresh Builtin to be inactive")
	}
	if err := b.SetProtocols("6,17"); err != nil {
		t.Fatalf("SetProtocols failed: %v", err)
	}
	if err := b.SetDPorts("80,443,8000-8080"); err != nil {
		t.Fatalf("SetDPorts failed: %v", err)
	}
	if !b.Active() {
		t.Fatalf("Expected the Builtin to be active")
	}

	rec := &model.FlowRec{Proto: 6, DstPort: 8042}
	if v := b.Check(rec); v != model.Pass {
		t.Errorf("Expected Pass for tcp/8042, got %v", v)
	}
	rec.Proto = 1
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for icmp, got %v", v)
	}
	rec.Proto = 6
	rec.DstPort = 22
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for port 22, got %v", v)
	}
}

func TestBuiltin_AddressTests(t *testing.T) {
	b := &Builtin{}
	if err := b.SetSAddress("10.0.0.0/8,192.168.1.1", false); err != nil {
		t.Fatalf("SetSAddress failed: %v", err)
	}
	rec := &model.FlowRec{SrcIP: netip.MustParseAddr("10.9.8.7")}
	if v := b.Check(rec); v != model.Pass {
		t.Errorf("Expected Pass for 10.9.8.7, got %v", v)
	}
	rec.SrcIP = netip.MustParseAddr("192.168.1.1")
	if v := b.Check(rec); v != model.Pass {
		t.Errorf("Expected Pass for the bare address, got %v", v)
	}
	rec.SrcIP = netip.MustParseAddr("192.168.1.2")
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for 192.168.1.2, got %v", v)
	}

	// Negated form inverts membership.
	neg := &Builtin{}
	if err := neg.SetSAddress("10.0.0.0/8", true); err != nil {
		t.Fatalf("SetSAddress failed: %v", err)
	}
	rec.SrcIP = netip.MustParseAddr("10.1.1.1")
	if v := neg.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for a covered address under negation, got %v", v)
	}
	rec.SrcIP = netip.MustParseAddr("172.16.0.1")
	if v := neg.Check(rec); v != model.Pass {
		t.Errorf("Expected Pass for an uncovered address under negation, got %v", v)
	}
}

func TestBuiltin_TimeAndVolumeTests(t *testing.T) {
	base := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	b := &Builtin{}
	b.SetSTime(base, base.Add(time.Hour))
	if err := b.SetBytes("100-"); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}
	if err := b.SetBytesPerPacket("40-60.5"); err != nil {
		t.Fatalf("SetBytesPerPacket failed: %v", err)
	}

	rec := &model.FlowRec{
		StartTime: base.Add(30 * time.Minute),
		Packets:   10,
		Bytes:     500,
	}
	if v := b.Check(rec); v != model.Pass {
		t.Errorf("Expected Pass, got %v", v)
	}

	rec.StartTime = base.Add(2 * time.Hour)
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail outside the start-time window, got %v", v)
	}
	rec.StartTime = base
	rec.Bytes = 99
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail under the byte floor, got %v", v)
	}
	rec.Bytes = 1000
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for 100 bytes/packet, got %v", v)
	}

	// Zero packets can never satisfy a ratio test.
	rec.Bytes = 500
	rec.Packets = 0
	if v := b.Check(rec); v != model.Fail {
		t.Errorf("Expected Fail for a zero-packet record, got %v", v)
	}
}

func TestParseCountRange(t *testing.T) {
	lo, hi, err := ParseCountRange("42")
	if err != nil || lo != 42 || hi != 42 {
		t.Errorf("Single value: got %d-%d, err %v", lo, hi, err)
	}
	lo, hi, err = ParseCountRange("10-20")
	if err != nil || lo != 10 || hi != 20 {
		t.Errorf("Closed range: got %d-%d, err %v", lo, hi, err)
	}
	lo, hi, err = ParseCountRange("10-")
	if err != nil || lo != 10 || hi != ^uint64(0) {
		t.Errorf("Open range: got %d-%d, err %v", lo, hi, err)
	}
	if _, _, err := ParseCountRange("20-10"); err == nil {
		t.Errorf("Expected an error for a backwards range")
	}
	if _, _, err := ParseCountRange("many"); err == nil {
		t.Errorf("Expected an error for a non-number")
	}
}

func TestParseNumberSet_Limits(t *testing.T) {
	if _, err := parseNumberSet("80,90000", 65535); err == nil {
		t.Errorf("Expected an error for a value above the maximum")
	}
	m, err := parseNumberSet("1,5-7", 255)
	if err != nil {
		t.Fatalf("parseNumberSet failed: %v", err)
	}
	for _, v := range []uint{1, 5, 6, 7} {
		if !m.get(v) {
			t.Errorf("Expected %d to be in the set", v)
		}
	}
	if m.get(4) || m.get(8) {
		t.Errorf("Unexpected members in the set")
	}
}
