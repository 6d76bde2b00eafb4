package dosscan

import "github.com/pkg/errors"

// Error kinds, per spec `# 7 ERROR HANDLING DESIGN`. Each is a sentinel;
// call sites wrap it with errors.Wrap/Wrapf for position-specific context,
// and errors.Cause unwraps back to the sentinel for classification.
var (
	// ErrCorruptedStream is raised on magic/version/handle-range/tag-code
	// violations.
	ErrCorruptedStream = errors.New("corrupted stream")

	// ErrMalformedUTF is raised on a bad modified-UTF-8 leading or
	// continuation byte, or a multi-byte sequence cut off by the end of
	// the declared length. A body shorter than its declared length on the
	// wire surfaces as the read error instead.
	ErrMalformedUTF = errors.New("malformed modified-UTF-8")

	// ErrUnexpectedEOF is raised when the byte source ends mid-record. It
	// is a warning, not a fatal verdict driver: the walk terminates
	// cleanly and the reference-graph analysis still runs over whatever
	// was parsed.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")

	// ErrInvalidClassFlags is raised when a class descriptor's flags
	// conflict (serializable and externalizable both set) or an enum
	// descriptor carries a non-zero serialVersionUID/field count.
	ErrInvalidClassFlags = errors.New("invalid class descriptor flags")

	// ErrArrayTooLarge drives an Unsafe{ArrayTooLarge} verdict.
	ErrArrayTooLarge = errors.New("array size too large (possible deserialization DoS)")

	// ErrReferenceTooComplex drives an Unsafe{ReferenceTooComplex} verdict.
	ErrReferenceTooComplex = errors.New("object reference graph too complex (possible deserialization DoS)")

	// ErrBlockStateViolation is raised when the block-data reader is
	// switched from block mode to raw mode while unconsumed block bytes
	// remain. This is a programmer error in the grammar walker, not
	// attacker-controlled input.
	ErrBlockStateViolation = errors.New("block data mode switched with unread block bytes")
)

// Reason identifies which safety ceiling an Unsafe verdict tripped.
type Reason string

const (
	// ReasonArrayTooLarge corresponds to ErrArrayTooLarge.
	ReasonArrayTooLarge Reason = "ArrayTooLarge"
	// ReasonReferenceTooComplex corresponds to ErrReferenceTooComplex.
	ReasonReferenceTooComplex Reason = "ReferenceTooComplex"
)

// causeIs reports whether err's root cause is sentinel, following the
// teacher's own errors.Cause(err).Error() == ... comparison idiom in
// ParseSerializedObject.
func causeIs(err, sentinel error) bool {
	if err == nil {
		return false
	}
	return errors.Cause(err).Error() == sentinel.Error()
}
