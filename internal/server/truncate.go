package server

import (
	"encoding/binary"

	"github.com/jroosing/rootwalk/internal/dns"
)

// truncateUDPResponse truncates a DNS response to fit within the UDP size
// limit the client advertised.
//
// When a DNS response exceeds maxSize, this function:
//  1. Sets the TC (Truncation) flag
//  2. Preserves only the header and question section
//  3. Removes all answer, authority, and additional records
func truncateUDPResponse(respBytes []byte, maxSize int) []byte {
	if maxSize <= 0 {
		maxSize = dns.DefaultUDPPayloadSize
	}
	if len(respBytes) <= maxSize {
		return respBytes
	}
	if len(respBytes) < dns.HeaderSize {
		return respBytes
	}

	qdcount := binary.BigEndian.Uint16(respBytes[4:6])
	header := buildTruncatedHeader(respBytes, qdcount)

	if qdcount == 0 {
		return header
	}

	questionEnd := findQuestionSectionEnd(respBytes, int(qdcount))
	if questionEnd <= dns.HeaderSize || questionEnd > maxSize {
		return header
	}

	out := make([]byte, 0, questionEnd)
	out = append(out, header...)
	out = append(out, respBytes[dns.HeaderSize:questionEnd]...)
	return out
}

// buildTruncatedHeader creates a new DNS header with the TC flag set,
// the original transaction ID and question count, and zeroed record
// counts.
func buildTruncatedHeader(respBytes []byte, qdcount uint16) []byte {
	flags := dns.UnpackFlags(binary.BigEndian.Uint16(respBytes[2:4]))
	flags.TC = true

	h := make([]byte, dns.HeaderSize)
	copy(h[0:2], respBytes[0:2])
	binary.BigEndian.PutUint16(h[2:4], flags.Pack())
	binary.BigEndian.PutUint16(h[4:6], qdcount)
	return h
}

// findQuestionSectionEnd finds the byte offset where the question section
// ends. Each question is a QNAME (labels or a compression pointer)
// followed by 2-byte QTYPE and QCLASS.
func findQuestionSectionEnd(msg []byte, qdcount int) int {
	pos := dns.HeaderSize

	for i := 0; i < qdcount; i++ {
		pos = skipQNAME(msg, pos)
		if pos > len(msg) {
			return len(msg)
		}
		if pos+4 > len(msg) {
			return len(msg)
		}
		pos += 4
	}
	return pos
}

// skipQNAME advances past a DNS name in wire format: length-prefixed
// labels ended by a zero octet, or a 2-byte compression pointer.
func skipQNAME(msg []byte, pos int) int {
	for pos < len(msg) {
		labelLen := msg[pos]

		if labelLen == 0 {
			return pos + 1
		}
		if labelLen >= 0xC0 {
			if pos+2 > len(msg) {
				return len(msg)
			}
			return pos + 2
		}

		pos++
		if pos+int(labelLen) > len(msg) {
			return len(msg)
		}
		pos += int(labelLen)
	}
	return pos
}
