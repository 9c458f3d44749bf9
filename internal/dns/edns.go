package dns

// EDNS (Extension Mechanisms for DNS) constants per RFC 6891.
const (
	DefaultUDPPayloadSize = 512  // Traditional DNS UDP limit (RFC 1035)
	EDNSMaxUDPPayloadSize = 4096 // Maximum datagram size this server processes
	EDNSMinUDPPayloadSize = 512  // Minimum EDNS UDP payload size
)

// AddOPT appends an EDNS OPT pseudo-record advertising the given UDP
// payload size (RFC 6891 Section 6.1.2). The OPT record abuses the RR
// layout: CLASS carries the payload size, TTL carries extended RCODE and
// flags (zero here), and the name is always root.
func AddOPT(p *Packet, payloadSize uint16) {
	p.Additionals = append(p.Additionals, Record{
		Name:  ".",
		Type:  uint16(TypeOPT),
		Class: payloadSize,
		TTL:   0,
		Data:  OpaqueRData{},
	})
}

// ClientMaxUDPSize returns the response size the client can accept over
// UDP: the payload size advertised in its OPT record, clamped to
// [EDNSMinUDPPayloadSize, EDNSMaxUDPPayloadSize], or the traditional
// 512-byte limit when the query carries no EDNS.
func ClientMaxUDPSize(p Packet) int {
	for _, rr := range p.Additionals {
		if RecordType(rr.Type) != TypeOPT {
			continue
		}
		size := int(rr.Class)
		if size < EDNSMinUDPPayloadSize {
			return EDNSMinUDPPayloadSize
		}
		if size > EDNSMaxUDPPayloadSize {
			return EDNSMaxUDPPayloadSize
		}
		return size
	}
	return DefaultUDPPayloadSize
}
