// Package packet turns raw captured packets into single-packet flow
// records for the pcap-to-repository converter.
package packet

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"FlowSieve/internal/model"
)

// Assemble decodes one raw Ethernet frame into a flow record covering just
// that packet. Non-IPv4 and non-TCP/UDP packets are rejected with an error;
// callers skip them.
func Assemble(data []byte, ts time.Time) (*model.FlowRec, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	rec := &model.FlowRec{
		Packets:   1,
		Bytes:     uint64(len(data)),
		StartTime: ts,
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now()
	}

	l := pkt.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := l.(*layers.IPv4)
	src, ok := netip.AddrFromSlice(ip.SrcIP.To4())
	if !ok {
		return nil, fmt.Errorf("bad source address")
	}
	dst, ok := netip.AddrFromSlice(ip.DstIP.To4())
	if !ok {
		return nil, fmt.Errorf("bad destination address")
	}
	rec.SrcIP = src
	rec.DstIP = dst
	rec.Proto = uint8(ip.Protocol)

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.SrcPort = uint16(tcp.SrcPort)
		rec.DstPort = uint16(tcp.DstPort)
		rec.TCPFlags = tcpFlags(tcp)
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.SrcPort = uint16(udp.SrcPort)
		rec.DstPort = uint16(udp.DstPort)
	} else {
		return nil, fmt.Errorf("not a TCP or UDP packet")
	}

	return rec, nil
}

func tcpFlags(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= 0x01
	}
	if tcp.SYN {
		f |= 0x02
	}
	if tcp.RST {
		f |= 0x04
	}
	if tcp.PSH {
		f |= 0x08
	}
	if tcp.ACK {
		f |= 0x10
	}
	if tcp.URG {
		f |= 0x20
	}
	return f
}
