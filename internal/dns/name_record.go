package dns

// NameRData is the payload of records whose data is a single domain name:
// NS, CNAME and PTR (RFC 1035 Sections 3.3.1, 3.3.11, 3.3.12).
type NameRData struct {
	Target string
}

// MarshalRData appends the target name, uncompressed.
func (d NameRData) MarshalRData(w *WriteBuffer) error {
	return w.WriteName(d.Target)
}

// parseNameRData decodes the embedded name. The name may be compressed
// and so can finish before RDLENGTH is exhausted; the record parser
// skips any residue and rejects overruns.
func parseNameRData(b *ReadBuffer, _ int) (RData, error) {
	n, err := b.ReadName()
	if err != nil {
		return nil, err
	}
	return NameRData{Target: n}, nil
}
