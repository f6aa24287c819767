package pcap

import (
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"FlowSieve/internal/model"
	"FlowSieve/internal/packet"
)

// Reader reads flow records out of a pcap capture file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadFlows reads every packet from the capture, assembles a single-packet
// flow record from each, and hands it to fn. Packets the assembler cannot
// decode are logged and skipped.
func (r *Reader) ReadFlows(fn func(rec *model.FlowRec)) {
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for pkt := range packetSource.Packets() {
		ts := pkt.Metadata().Timestamp
		rec, err := packet.Assemble(pkt.Data(), ts)
		if err != nil {
			// unsupported packet types or corrupt data; keep going
			log.Printf("Error parsing packet: %v", err)
			continue
		}
		fn(rec)
	}
}
