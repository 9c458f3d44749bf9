package dns

import "fmt"

// RData is the record-type-specific payload of a resource record.
// Implementations form a closed sum: ARData, AAAARData, NameRData and
// OpaqueRData. Marshalling writes only the payload; the RDLENGTH prefix
// belongs to Record.Marshal.
type RData interface {
	// MarshalRData appends the payload in wire format.
	MarshalRData(w *WriteBuffer) error
}

// rdataParser decodes a payload of rdlen bytes at the buffer's cursor.
// The surrounding record parser enforces the RDLENGTH envelope, so a
// parser may read less than rdlen (trailing bytes are skipped) but never
// more.
type rdataParser func(b *ReadBuffer, rdlen int) (RData, error)

// rdataParsers dispatches payload decoding on the 16-bit type code.
// Types without an entry decode as OpaqueRData. New record types are
// supported by adding an RData implementation and registering its parser
// here.
var rdataParsers = map[RecordType]rdataParser{
	TypeA:     parseARData,
	TypeAAAA:  parseAAAARData,
	TypeNS:    parseNameRData,
	TypeCNAME: parseNameRData,
	TypePTR:   parseNameRData,
}

// Record represents one resource record from the answer, authority or
// additional section (RFC 1035 Section 4.1.3).
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  RData
}

// ParseRecord reads a resource record at the buffer's cursor.
//
// The payload is decoded through the type registry. A name-typed payload
// may legitimately stop short of RDLENGTH (trailing bytes are consumed
// and ignored), but reading past the declared length is an error.
func ParseRecord(b *ReadBuffer) (Record, error) {
	name, err := b.ReadName()
	if err != nil {
		return Record{}, err
	}
	rrType, err := b.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated record", ErrEndOfBuffer)
	}
	rrClass, err := b.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated record", ErrEndOfBuffer)
	}
	ttl, err := b.ReadUint32()
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated record", ErrEndOfBuffer)
	}
	rdlen, err := b.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated record", ErrEndOfBuffer)
	}

	start := b.Position()
	end := start + int(rdlen)
	if end > b.Len() {
		return Record{}, fmt.Errorf("%w: rdata runs past end of message", ErrEndOfBuffer)
	}

	var data RData
	if parse, ok := rdataParsers[RecordType(rrType)]; ok {
		data, err = parse(b, int(rdlen))
	} else {
		data, err = parseOpaqueRData(b, int(rdlen))
	}
	if err != nil {
		return Record{}, err
	}
	if b.Position() > end {
		return Record{}, fmt.Errorf("%w: rdata for type %d overran its length", ErrInvalidRData, rrType)
	}
	if err := b.Seek(end); err != nil {
		return Record{}, err
	}

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

// Marshal appends the record to the buffer. OPT pseudo-records always
// carry the root name on the wire regardless of the stored name
// (RFC 6891 Section 6.1.2).
func (rr Record) Marshal(w *WriteBuffer) error {
	if RecordType(rr.Type) == TypeOPT {
		w.WriteUint8(0)
	} else if err := w.WriteName(rr.Name); err != nil {
		return err
	}
	w.WriteUint16(rr.Type)
	w.WriteUint16(rr.Class)
	w.WriteUint32(rr.TTL)

	scratch := NewWriteBuffer(32)
	if rr.Data != nil {
		if err := rr.Data.MarshalRData(scratch); err != nil {
			return err
		}
	}
	rdata := scratch.Bytes()
	if len(rdata) > 0xFFFF {
		return fmt.Errorf("%w: rdata of %d bytes does not fit RDLENGTH", ErrInvalidRData, len(rdata))
	}
	w.WriteUint16(uint16(len(rdata)))
	w.WriteBytes(rdata)
	return nil
}
