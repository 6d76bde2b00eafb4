package dosscan

import (
	"bytes"
	"testing"
	"testing/iotest"
)

func TestClassDescConflictingFlagsIsFatal(t *testing.T) {
	// TC_CLASSDESC name="C", suid=0, flags = SC_SERIALIZABLE|SC_EXTERNALIZABLE.
	stream := hdrOk + "72" + encodeUTF("C") + "0000000000000000" + "06" + "0000" + "78" + "70"

	_, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if !causeIs(err, ErrInvalidClassFlags) {
		t.Fatalf("Check error = %v, want ErrInvalidClassFlags", err)
	}
}

func TestEnumDescriptorWithFieldsIsFatal(t *testing.T) {
	// SC_ENUM set but numFields = 1: a contradiction per spec 4.C.
	stream := hdrOk + "72" + encodeUTF("E") + "0000000000000000" + "10" + "0001" +
		"49" + encodeUTF("x") + "78" + "70"

	_, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if !causeIs(err, ErrInvalidClassFlags) {
		t.Fatalf("Check error = %v, want ErrInvalidClassFlags", err)
	}
}

// TestVerdictDeterministicUnderChunking checks that delivering the same
// bytes one at a time through the underlying reader yields the same
// verdict as delivering them in one chunk, per the chunking-determinism
// property in spec `# 8`.
func TestVerdictDeterministicUnderChunking(t *testing.T) {
	stream := hdrOk + "75" + "72" + classDescTail("[I") + "00010001" // oversized array

	whole, err := Check(bytes.NewReader(decodeHex(t, stream)))
	if err != nil {
		t.Fatalf("Check (whole): %v", err)
	}

	chunked, err := Check(iotest.OneByteReader(bytes.NewReader(decodeHex(t, stream))))
	if err != nil {
		t.Fatalf("Check (chunked): %v", err)
	}

	if whole != chunked {
		t.Fatalf("Check(whole) = %v, Check(chunked) = %v; want equal", whole, chunked)
	}
}

// newTestWalker builds a walker directly over raw dispatch-loop bytes
// (no stream header), so individual tags can be driven through run()
// and the resulting handle table/edges inspected directly.
func newTestWalker(t *testing.T, hexStr string) *walker {
	t.Helper()

	src := newByteSource(bytes.NewReader(decodeHex(t, hexStr)))
	br := newBlockReader(src)
	an := newAnalyzer(defaultArraySizeMax, defaultReferenceMax, nil)

	return newWalker(br, an, nil)
}

// TestArrayDoesNotConsumeAHandle checks that TC_ARRAY's class
// descriptor gets a handle but the array value itself does not, per
// spec `4.C`'s dispatch table: a trailing TC_REFERENCE back to the
// handle allocated before the array must still resolve against a
// table that only grew by one slot.
func TestArrayDoesNotConsumeAHandle(t *testing.T) {
	stream := "74" + encodeUTF("d") + // handle 0: dummy string
		"75" + "72" + classDescTail("[I") + "00000005" + // TC_ARRAY, classdesc "[I", length 5
		"71" + "007e0000" // TC_REFERENCE back to handle 0

	w := newTestWalker(t, stream)
	if err := w.run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(w.handles) != 2 {
		t.Fatalf("len(handles) = %d, want 2 (the dummy string and the array's class descriptor; the array itself must not assign a handle)", len(w.handles))
	}

	if got := w.label(0); got != stringClassName {
		t.Fatalf("label(0) = %q, want %q", got, stringClassName)
	}

	if got := w.label(1); got != "[I" {
		t.Fatalf("label(1) = %q, want %q", got, "[I")
	}
}

// TestObjectHandleAssignedBeforeClassDescriptor checks that TC_OBJECT
// allocates its own handle before parsing its class descriptor, per
// spec `4.C`, mirroring parseEnum: a nested object's own handle (not
// its class descriptor's handle) is what ends up recorded as the
// source of the parent edge, and is what a back-reference to the
// object itself must resolve against.
func TestObjectHandleAssignedBeforeClassDescriptor(t *testing.T) {
	stream := "73" + "72" + classDescTail("Outer") + // object Outer handle 0, classdesc Outer handle 1
		"77" + "00" + // TC_BLOCKDATA len=0, push parent = handle 1
		"73" + "72" + classDescTail("Inner") + // object Inner handle 2, classdesc Inner handle 3
		"71" + "007e0002" + // TC_REFERENCE to handle 2 (Inner's own object handle)
		"78" // TC_ENDBLOCKDATA, pop parent

	w := newTestWalker(t, stream)
	if err := w.run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := w.label(0); got != "Outer" {
		t.Fatalf("label(0) = %q, want %q", got, "Outer")
	}

	if got := w.label(2); got != "Inner" {
		t.Fatalf("label(2) = %q, want %q", got, "Inner")
	}

	if edge := w.edges[1]; len(edge) != 1 || !edge[2] {
		t.Fatalf("edges[1] = %v, want {2} (Inner's own object handle, not its class descriptor handle 3)", edge)
	}

	if edge := w.edges[3]; len(edge) != 1 || !edge[2] {
		t.Fatalf("edges[3] = %v, want {2} (the back-reference resolved against Inner's own object handle)", edge)
	}
}
