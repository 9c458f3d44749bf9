package dns

import (
	"errors"
	"fmt"

	"github.com/jroosing/rootwalk/internal/helpers"
)

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 4    // Maximum questions per query (RFC allows 1 typically)
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// ParseRequestBounded parses a DNS request with security bounds checking.
// It validates that the message is a standard query (not a response),
// uses opcode 0 (QUERY), and doesn't exceed resource limits.
//
// Returns an error if:
//   - Message exceeds MaxIncomingDNSMessageSize
//   - QR flag is set (packet is a response, not a query)
//   - Opcode is not QUERY
//   - Question or RR counts exceed limits
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, errors.New("dns message too large")
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}

	if p.Header.Flags.QR {
		return Packet{}, errors.New("invalid packet: QR flag set (response packet received)")
	}
	if p.Header.Flags.Opcode != OpcodeQuery {
		return Packet{}, fmt.Errorf("unsupported OpCode: %d", p.Header.Flags.Opcode)
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// validateSectionCounts checks that section counts don't exceed limits.
func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd > MaxQuestions {
		return errors.New("too many questions")
	}
	if qd != 1 {
		return errors.New("unsupported question count")
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return errors.New("too many resource records")
	}
	if (an + ns + ar) > MaxTotalRR {
		return errors.New("too many total resource records")
	}
	return nil
}

// BuildErrorResponse constructs a DNS error response packet.
// It preserves the transaction ID and RD flag from the request, sets the
// QR and RA flags, and applies the given response code. The response
// echoes the original question section but carries no records.
func BuildErrorResponse(req Packet, rcode RCode) Packet {
	h := Header{
		ID: req.Header.ID,
		Flags: Flags{
			QR:    true,
			RD:    req.Header.Flags.RD,
			RA:    true,
			RCode: rcode,
		},
		QDCount: helpers.ClampIntToUint16(len(req.Questions)),
	}
	return Packet{Header: h, Questions: req.Questions}
}
