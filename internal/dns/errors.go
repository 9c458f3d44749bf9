// Package dns implements the DNS wire format: bounds-checked buffers,
// compression-aware name coding, and message encode/decode.
//
// Standards Compliance:
//
// This package implements DNS protocol features from the following RFCs:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//
// Type-Oriented Design:
//
// Record data is a closed sum over explicit types (ARData, AAAARData,
// NameRData, OpaqueRData) rather than a bag of bytes. New record types are
// added by widening the sum and registering a parser for the 16-bit type code.
//
// Error Handling:
//
// All errors wrap one of the sentinels below using fmt.Errorf("...: %w", err),
// so callers can classify failures with errors.Is while keeping context.
package dns

import "errors"

var (
	// ErrEndOfBuffer indicates a read past the end of the message.
	ErrEndOfBuffer = errors.New("dns: end of buffer")

	// ErrInvalidName indicates a malformed domain name on the wire:
	// reserved label bits, a pointer loop, an out-of-range pointer
	// target, or label bytes that are not valid UTF-8.
	ErrInvalidName = errors.New("dns: invalid name")

	// ErrLabelTooLong indicates a label longer than 63 bytes on encode.
	ErrLabelTooLong = errors.New("dns: label too long")

	// ErrInvalidField indicates a malformed header or question.
	ErrInvalidField = errors.New("dns: invalid field")

	// ErrInvalidRData indicates record data inconsistent with its
	// declared RDLENGTH, or a fixed-size record of the wrong size.
	ErrInvalidRData = errors.New("dns: invalid rdata")
)
