package dns

// OpaqueRData carries the raw payload of record types the codec does not
// interpret (SOA, MX, TXT, OPT and anything unknown). The traversal never
// looks inside these; they round-trip byte for byte.
type OpaqueRData struct {
	Bytes []byte
}

// MarshalRData appends the raw payload.
func (d OpaqueRData) MarshalRData(w *WriteBuffer) error {
	w.WriteBytes(d.Bytes)
	return nil
}

func parseOpaqueRData(b *ReadBuffer, rdlen int) (RData, error) {
	p, err := b.ReadSlice(rdlen)
	if err != nil {
		return nil, err
	}
	return OpaqueRData{Bytes: p}, nil
}
