package dns

import (
	"github.com/jroosing/rootwalk/internal/helpers"
)

// Packet represents a complete DNS message (RFC 1035 Section 4).
//
// A DNS packet consists of a header and four sections:
//   - Questions: What the client is asking
//   - Answers: Resource records answering the question
//   - Authorities: Nameserver records pointing to authorities
//   - Additionals: Extra records (e.g., glue records, EDNS OPT)
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet to DNS wire format. Section counts in the
// header are derived from the section slices; the stored counts are
// ignored. Names are written uncompressed, so an encoded packet may be
// larger than the compressed form it was parsed from.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: helpers.ClampIntToUint16(len(p.Questions)),
		ANCount: helpers.ClampIntToUint16(len(p.Answers)),
		NSCount: helpers.ClampIntToUint16(len(p.Authorities)),
		ARCount: helpers.ClampIntToUint16(len(p.Additionals)),
	}

	// Estimate capacity: header(12) + question(~50) + records(~100 each)
	records := len(p.Answers) + len(p.Authorities) + len(p.Additionals)
	w := NewWriteBuffer(HeaderSize + len(p.Questions)*50 + records*100)

	h.Marshal(w)
	for _, q := range p.Questions {
		if err := q.Marshal(w); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			if err := rr.Marshal(w); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

// ParsePacket parses a complete DNS message. Section counts beyond what
// the body actually holds are fatal; the parser does not tolerate a
// count/body mismatch.
func ParsePacket(msg []byte) (Packet, error) {
	b := NewReadBuffer(msg)

	h, err := ParseHeader(b)
	if err != nil {
		return Packet{}, err
	}
	p := Packet{Header: h}

	// Cap initial allocations so a forged header with huge counts in a
	// tiny packet cannot force large up-front allocations.
	limitCount := func(count uint16, limit int) int {
		if int(count) > limit {
			return limit
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for i := uint16(0); i < h.QDCount; i++ {
		q, err := ParseQuestion(b)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	sections := []struct {
		count uint16
		dst   *[]Record
	}{
		{h.ANCount, &p.Answers},
		{h.NSCount, &p.Authorities},
		{h.ARCount, &p.Additionals},
	}
	for _, s := range sections {
		*s.dst = make([]Record, 0, limitCount(s.count, MaxRRPerSection))
		for i := uint16(0); i < s.count; i++ {
			rr, err := ParseRecord(b)
			if err != nil {
				return Packet{}, err
			}
			*s.dst = append(*s.dst, rr)
		}
	}
	return p, nil
}
