package packet

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildFrame(t *testing.T, transport gopacket.SerializableLayer, proto layers.IPProtocol) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(192, 168, 0, 2),
		Protocol: proto,
	}
	switch l := transport.(type) {
	case *layers.TCP:
		l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		l.SetNetworkLayerForChecksum(ip)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload([]byte("hello"))); err != nil {
		t.Fatalf("SerializeLayers failed: %v", err)
	}
	return buf.Bytes()
}

func TestAssemble_TCP(t *testing.T) {
	tcp := &layers.TCP{
		SrcPort: 50000,
		DstPort: 80,
		SYN:     true,
		ACK:     true,
	}
	data := buildFrame(t, tcp, layers.IPProtocolTCP)

	ts := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	rec, err := Assemble(data, ts)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if rec.SrcIP.String() != "10.0.0.1" || rec.DstIP.String() != "192.168.0.2" {
		t.Errorf("Unexpected addresses %s -> %s", rec.SrcIP, rec.DstIP)
	}
	if rec.SrcPort != 50000 || rec.DstPort != 80 {
		t.Errorf("Unexpected ports %d -> %d", rec.SrcPort, rec.DstPort)
	}
	if rec.Proto != 6 {
		t.Errorf("Expected protocol 6, got %d", rec.Proto)
	}
	if rec.TCPFlags != 0x12 {
		t.Errorf("Expected SYN|ACK flags 0x12, got 0x%02x", rec.TCPFlags)
	}
	if rec.Packets != 1 || rec.Bytes != uint64(len(data)) {
		t.Errorf("Unexpected volume: %d packets, %d bytes", rec.Packets, rec.Bytes)
	}
	if !rec.StartTime.Equal(ts) {
		t.Errorf("Expected start time %v, got %v", ts, rec.StartTime)
	}
}

func TestAssemble_UDP(t *testing.T) {
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	data := buildFrame(t, udp, layers.IPProtocolUDP)

	rec, err := Assemble(data, time.Now())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if rec.Proto != 17 || rec.SrcPort != 5353 || rec.DstPort != 53 {
		t.Errorf("Unexpected UDP record: proto %d, ports %d -> %d",
			rec.Proto, rec.SrcPort, rec.DstPort)
	}
	if rec.TCPFlags != 0 {
		t.Errorf("Expected no TCP flags on UDP, got 0x%02x", rec.TCPFlags)
	}
}

func TestAssemble_RejectsNonIP(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   eth.SrcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		t.Fatalf("SerializeLayers failed: %v", err)
	}

	if _, err := Assemble(buf.Bytes(), time.Now()); err == nil {
		t.Errorf("Expected an error for a non-IPv4 frame")
	}
}
