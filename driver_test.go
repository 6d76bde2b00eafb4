package dosscan

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad test hex %q: %v", s, err)
	}

	return b
}

// encodeUTF returns the TC_STRING body encoding of s: a 2-byte length
// prefix followed by its modified-UTF-8 bytes (plain ASCII here, so
// this is just the raw bytes).
func encodeUTF(s string) string {
	return hex.EncodeToString([]byte{byte(len(s) >> 8), byte(len(s))}) + hex.EncodeToString([]byte(s))
}

const (
	hdrMagic   = "aced"
	hdrVersion = "0005"
	hdrOk      = hdrMagic + hdrVersion
)

// classDescTail builds a minimal non-proxy class descriptor body
// (everything after TC_CLASSDESC) with zero fields and no superclass.
func classDescTail(name string) string {
	return encodeUTF(name) +
		"0000000000000000" + // serialVersionUID
		"02" + // SC_SERIALIZABLE
		"0000" + // numFields = 0
		"78" + // TC_ENDBLOCKDATA ends skip_custom_data with nothing to skip
		"70" // TC_NULL superclass
}

func TestHeaderOnlyStreamIsSafe(t *testing.T) {
	v, err := Check(bytes.NewReader(decodeHex(t, hdrOk)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if !v.Safe {
		t.Fatalf("Check = %v, want Safe", v)
	}
}

func TestSingleStringRoundTrips(t *testing.T) {
	stream := hdrOk + "74" + encodeUTF("abc")

	var sink CollectingSink

	scanner := NewScanner(WithSink(&sink))

	v, err := scanner.Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if !v.Safe {
		t.Fatalf("Check = %v, want Safe", v)
	}
}

func TestBadMagicIsFatalNotAVerdict(t *testing.T) {
	stream := "00000005"

	_, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if !causeIs(err, ErrCorruptedStream) {
		t.Fatalf("Check error = %v, want ErrCorruptedStream", err)
	}
}

func TestOutOfRangeReferenceIsCorrupted(t *testing.T) {
	// TC_REFERENCE to handle 0 (baseWireHandle+0) before any handle exists.
	stream := hdrOk + "71" + "007e0000"

	_, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if !causeIs(err, ErrCorruptedStream) {
		t.Fatalf("Check error = %v, want ErrCorruptedStream", err)
	}
}

func TestOversizedArrayIsUnsafe(t *testing.T) {
	// TC_ARRAY, class descriptor named "[I", then a 65537 (0x00010001) length.
	stream := hdrOk + "75" + "72" + classDescTail("[I") + "00010001"

	v, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if v.Safe || v.Reason != ReasonArrayTooLarge {
		t.Fatalf("Check = %v, want Unsafe{ArrayTooLarge}", v)
	}
}

func TestArraySizeExactlyAtCeilingIsSafe(t *testing.T) {
	stream := hdrOk + "75" + "72" + classDescTail("[I") + "00010000" // 65536

	v, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if !v.Safe {
		t.Fatalf("Check = %v, want Safe at exactly ARRAY_SIZE_MAX", v)
	}
}

func TestProxyExcessiveInterfaceCountIsUnsafeWithoutReadingNames(t *testing.T) {
	// numIfaces = 70000 (0x00011170), no interface name bytes follow:
	// if the walker tried to read them it would fail with EOF, not ArrayTooLarge.
	stream := hdrOk + "75" + "7d" + "00011170"

	v, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if v.Safe || v.Reason != ReasonArrayTooLarge {
		t.Fatalf("Check = %v, want Unsafe{ArrayTooLarge}", v)
	}
}

// TestMutualBackReferenceCycleIsUnsafe builds spec `# 8` end-to-end
// scenario 5 out of literal TC_REFERENCE bytes rather than a
// hand-constructed edges map: a dummy string occupies handle 0 (kept
// out of the cycle, since handle 0 is the traversal sentinel), object
// A gets handle 1 (handle 2 goes to its class descriptor), and a
// block-data frame opened on A's class descriptor nests object B
// (handle 3) so TC_OBJECT records the edge classdesc(A) -> B. B's own
// class descriptor declares one object-typed field whose type string
// is a TC_REFERENCE back to classdesc(A), which fires while B's own
// handle is still current and so records the reverse edge
// B -> classdesc(A), closing the cycle. With no visited set, the
// bounded DFS over the two reciprocal edges recurses forever and must
// trip ReferenceTooComplex.
func TestMutualBackReferenceCycleIsUnsafe(t *testing.T) {
	// classdesc body for "B": one field named "f" of object type 'L'
	// whose type string is TC_REFERENCE to handle 2 (classdesc A).
	bClassDescBody := encodeUTF("B") +
		"0000000000000000" + // serialVersionUID
		"02" + // SC_SERIALIZABLE
		"0001" + // numFields = 1
		"4c" + encodeUTF("f") + "71" + "007e0002" + // 'L' f -> TC_REFERENCE handle 2
		"78" + // TC_ENDBLOCKDATA ends skip_custom_data
		"70" // TC_NULL superclass

	stream := hdrOk +
		"74" + encodeUTF("d") + // dummy string, handle 0
		"73" + "72" + classDescTail("A") + // TC_OBJECT A: object A handle 1, classdesc A handle 2
		"77" + "00" + // TC_BLOCKDATA len=0, push parent = handle 2 (classdesc A)
		"73" + "72" + bClassDescBody + // TC_OBJECT B: object B handle 3; field type-string records edge B -> classdesc(A); classdesc B handle 4; parent edge records classdesc(A) -> B
		"78" // TC_ENDBLOCKDATA, pop parent

	v, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if v.Safe || v.Reason != ReasonReferenceTooComplex {
		t.Fatalf("Check = %v, want Unsafe{ReferenceTooComplex}", v)
	}
}
