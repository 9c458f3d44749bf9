package dns

import "fmt"

// Question represents a DNS question (RFC 1035 Section 4.1.2).
type Question struct {
	Name  string // Domain name (e.g., "example.com")
	Type  uint16 // Record type (e.g., TypeA, TypeAAAA)
	Class uint16 // Record class (usually ClassIN for Internet)
}

// Marshal appends the question to the buffer.
func (q Question) Marshal(w *WriteBuffer) error {
	if err := w.WriteName(q.Name); err != nil {
		return err
	}
	w.WriteUint16(q.Type)
	w.WriteUint16(q.Class)
	return nil
}

// ParseQuestion reads a question at the buffer's cursor. The name is
// normalized to lowercase for case-insensitive comparisons.
func ParseQuestion(b *ReadBuffer) (Question, error) {
	name, err := b.ReadName()
	if err != nil {
		return Question{}, err
	}
	qtype, err := b.ReadUint16()
	if err != nil {
		return Question{}, fmt.Errorf("%w: truncated question", ErrInvalidField)
	}
	qclass, err := b.ReadUint16()
	if err != nil {
		return Question{}, fmt.Errorf("%w: truncated question", ErrInvalidField)
	}
	return Question{Name: NormalizeName(name), Type: qtype, Class: qclass}, nil
}
