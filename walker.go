package dosscan

import "github.com/pkg/errors"

// handleEntry is one slot in the dense, append-only handle table, per
// spec `4.C`. label is empty until a class descriptor, string, or
// reference fills it in.
type handleEntry struct {
	label string
}

// walker consumes a blockReader and owns the handle table, the
// reference-edge graph, and the parent stack, per spec `4.C`.
type walker struct {
	br *blockReader

	analyzer *analyzer
	sink     Sink

	handles         []handleEntry
	nowObjectNumber int32 // most recently assigned handle (the current object); -1 before the first

	// edges maps a target handle to the set of handles that reference it
	// (S(t) in spec `4.D`).
	edges map[int32]map[int32]bool

	parents []int32
}

func newWalker(br *blockReader, an *analyzer, sink Sink) *walker {
	if sink == nil {
		sink = NopSink{}
	}

	return &walker{
		br:              br,
		analyzer:        an,
		sink:            sink,
		nowObjectNumber: -1,
		edges:           make(map[int32]map[int32]bool),
	}
}

// checkHeader reads and validates the 2-byte magic and 2-byte version,
// per spec `4.C`.
func (w *walker) checkHeader() error {
	magic, err := w.br.readUint16()
	if err != nil {
		return errors.Wrap(err, "error reading stream magic")
	}

	if magic != streamMagic {
		return errors.Wrapf(ErrCorruptedStream, "expected magic %#x, got %#x", streamMagic, magic)
	}

	version, err := w.br.readUint16()
	if err != nil {
		return errors.Wrap(err, "error reading stream version")
	}

	if version != streamVersion {
		return errors.Wrapf(ErrCorruptedStream, "expected version %#x, got %#x", streamVersion, version)
	}

	w.sink.Info("stream magic and version are correct")

	return nil
}

// nextHandle allocates and returns the next handle, appending an
// unlabeled entry to the handle table.
func (w *walker) nextHandle() int32 {
	w.nowObjectNumber++
	w.handles = append(w.handles, handleEntry{})

	return w.nowObjectNumber
}

func (w *walker) setLabel(h int32, label string) {
	if h < 0 || int(h) >= len(w.handles) {
		return
	}

	w.handles[h].label = label
}

func (w *walker) label(h int32) string {
	if h < 0 || int(h) >= len(w.handles) {
		return ""
	}

	return w.handles[h].label
}

func (w *walker) addEdge(target, source int32) {
	s, ok := w.edges[target]
	if !ok {
		s = make(map[int32]bool)
		w.edges[target] = s
	}

	s[source] = true
}

func (w *walker) pushParent(h int32) { w.parents = append(w.parents, h) }

func (w *walker) popParent() {
	if len(w.parents) == 0 {
		return
	}

	w.parents = w.parents[:len(w.parents)-1]
}

func (w *walker) topParent() (int32, bool) {
	if len(w.parents) == 0 {
		return 0, false
	}

	return w.parents[len(w.parents)-1], true
}

// run drives the dispatch loop over B until the stream is exhausted or
// a fatal error occurs. EOF mid-stream is returned as ErrUnexpectedEOF
// so the driver can downgrade it to a warning.
func (w *walker) run() error {
	for {
		eof, err := w.br.atEOF()
		if err != nil {
			return err
		}

		if eof {
			return nil
		}

		if err := w.step(); err != nil {
			return err
		}
	}
}

func (w *walker) step() error {
	tag, err := w.br.peekTag()
	if err != nil {
		return err
	}

	switch tag {
	case tcNull:
		_, err := w.br.readUint8()
		return err

	case tcArray:
		return w.parseArray()

	case tcClassDesc, tcProxyClassDesc:
		_, err := w.parseClassDesc()
		return err

	case tcString, tcLongString:
		return w.parseString(tag)

	case tcObject:
		return w.parseObject()

	case tcEnum:
		return w.parseEnum()

	case tcClass:
		_, err := w.parseClass()
		return err

	case tcReference:
		return w.parseReference()

	case tcBlockData, tcBlockDataLong:
		return w.parseBlockData()

	case tcEndBlockData:
		if _, err := w.br.readUint8(); err != nil {
			return err
		}

		w.popParent()

		return nil

	default:
		// Graceful resync: consume the unrecognized tag and continue.
		_, err := w.br.readUint8()
		return err
	}
}

func (w *walker) parseArray() error {
	if _, err := w.br.readUint8(); err != nil { // TC_ARRAY
		return err
	}

	if _, err := w.parseClassDesc(); err != nil {
		return err
	}

	length, err := w.br.readInt32()
	if err != nil {
		return errors.Wrap(err, "error reading array length")
	}

	if length > 0 {
		if err := w.analyzer.recordArraySize(int64(length)); err != nil {
			return err
		}
	}

	return nil
}

func (w *walker) parseString(tag byte) error {
	if _, err := w.br.readUint8(); err != nil { // consume tag
		return err
	}

	h := w.nextHandle()

	var err error
	if tag == tcLongString {
		_, err = w.br.readUTFLong()
	} else {
		_, err = w.br.readUTF()
	}

	if err != nil {
		return errors.Wrap(err, "error reading string body")
	}

	w.setLabel(h, stringClassName)

	return nil
}

func (w *walker) parseObject() error {
	if _, err := w.br.readUint8(); err != nil { // TC_OBJECT
		return err
	}

	h := w.nextHandle()

	name, err := w.parseClassDesc()
	if err != nil {
		return err
	}

	w.setLabel(h, name)

	if parent, ok := w.topParent(); ok {
		w.addEdge(parent, h)
	}

	return nil
}

func (w *walker) parseReference() error {
	if _, err := w.br.readUint8(); err != nil { // TC_REFERENCE
		return err
	}

	raw, err := w.br.readInt32()
	if err != nil {
		return errors.Wrap(err, "error reading reference handle")
	}

	target := raw - baseWireHandle
	if target < 0 || int(target) >= len(w.handles) {
		return errors.Wrapf(ErrCorruptedStream, "reference handle %#x out of range", raw)
	}

	current := w.nowObjectNumber
	w.addEdge(current, target)

	if w.label(current) == "" {
		w.setLabel(current, w.label(target))
	}

	return nil
}

func (w *walker) parseBlockData() error {
	if err := w.br.setBlockMode(false); err != nil {
		return err
	}

	tag, err := w.br.readUint8()
	if err != nil {
		return err
	}

	var length int
	if tag == tcBlockDataLong {
		n, err := w.br.readInt32()
		if err != nil {
			return errors.Wrap(err, "error reading long block data header")
		}

		if n < 0 {
			return errors.Wrapf(ErrCorruptedStream, "illegal block data header length: %d", n)
		}

		length = int(n)
	} else {
		n, err := w.br.readUint8()
		if err != nil {
			return errors.Wrap(err, "error reading block data header")
		}

		length = int(n)
	}

	if _, err := w.br.readN(length); err != nil {
		return errors.Wrap(err, "error skipping block data payload")
	}

	w.pushParent(w.nowObjectNumber)

	return nil
}

// parseClassDesc dispatches on TC_CLASSDESC/TC_PROXYCLASSDESC/TC_NULL/
// TC_REFERENCE (any of which may legally appear wherever a class
// descriptor is expected), returning the class name of an inline
// descriptor. TC_NULL and TC_REFERENCE return an empty name; the name of
// a back-referenced descriptor is not looked up.
func (w *walker) parseClassDesc() (string, error) {
	tag, err := w.br.peekTag()
	if err != nil {
		return "", err
	}

	switch tag {
	case tcNull:
		if _, err := w.br.readUint8(); err != nil {
			return "", err
		}

		return "", nil

	case tcReference:
		if err := w.parseReference(); err != nil {
			return "", err
		}

		return "", nil

	case tcProxyClassDesc:
		return w.parseProxyClassDesc()

	case tcClassDesc:
		return w.parseNonProxyClassDesc()

	default:
		return "", errors.Wrapf(ErrCorruptedStream, "expected class descriptor tag, got %#x", tag)
	}
}

func (w *walker) parseProxyClassDesc() (string, error) {
	if _, err := w.br.readUint8(); err != nil { // TC_PROXYCLASSDESC
		return "", err
	}

	numIfaces, err := w.br.readInt32()
	if err != nil {
		return "", errors.Wrap(err, "error reading proxy interface count")
	}

	if numIfaces > 0 {
		if err := w.analyzer.recordArraySize(int64(numIfaces)); err != nil {
			return "", err
		}
	}

	for i := int32(0); i < numIfaces; i++ {
		if _, err := w.br.readUTF(); err != nil {
			return "", errors.Wrap(err, "error reading proxy interface name")
		}
	}

	return w.classDescTail("")
}

func (w *walker) parseNonProxyClassDesc() (string, error) {
	if _, err := w.br.readUint8(); err != nil { // TC_CLASSDESC
		return "", err
	}

	name, err := w.br.readUTF()
	if err != nil {
		return "", errors.Wrap(err, "error reading class name")
	}

	return w.classDescTail(name)
}

// classDescTail parses the fields shared by both descriptor variants
// and appends name to the handle table, per spec `4.C`.
func (w *walker) classDescTail(name string) (string, error) {
	suid, err := w.br.readInt64()
	if err != nil {
		return "", errors.Wrap(err, "error reading serialVersionUID")
	}

	flags, err := w.br.readUint8()
	if err != nil {
		return "", errors.Wrap(err, "error reading class flags")
	}

	if flags&scExternalizable != 0 && flags&scSerializable != 0 {
		return "", errors.Wrap(ErrInvalidClassFlags, "both SC_EXTERNALIZABLE and SC_SERIALIZABLE set")
	}

	numFields, err := w.br.readInt16()
	if err != nil {
		return "", errors.Wrap(err, "error reading field count")
	}

	if flags&scEnum != 0 && (suid != 0 || numFields != 0) {
		return "", errors.Wrap(ErrInvalidClassFlags, "enum descriptor with non-zero serialVersionUID or fields")
	}

	for i := int16(0); i < numFields; i++ {
		typeCode, err := w.br.readUint8()
		if err != nil {
			return "", errors.Wrap(err, "error reading field typecode")
		}

		if _, err := w.br.readUTF(); err != nil {
			return "", errors.Wrap(err, "error reading field name")
		}

		if typeCode == 'L' || typeCode == '[' {
			if err := w.parseTypeString(); err != nil {
				return "", errors.Wrap(err, "error reading field type string")
			}
		}
	}

	w.sink.Descriptor(name, suidHex(suid), int(numFields))

	if err := w.skipCustomData(); err != nil {
		return "", err
	}

	if _, err := w.parseClassDesc(); err != nil { // recursive super-class
		return "", err
	}

	h := w.nextHandle()
	w.setLabel(h, name)

	return name, nil
}

// parseTypeString reads a field's type-string, per spec `4.C`: an
// inline TC_STRING/TC_LONGSTRING, a TC_REFERENCE to a prior string, or
// TC_NULL.
func (w *walker) parseTypeString() error {
	tag, err := w.br.peekTag()
	if err != nil {
		return err
	}

	switch tag {
	case tcString, tcLongString:
		return w.parseString(tag)

	case tcReference:
		return w.parseReference()

	case tcNull:
		_, err := w.br.readUint8()
		return err

	default:
		return errors.Wrapf(ErrCorruptedStream, "expected type string tag, got %#x", tag)
	}
}

// skipCustomData consumes optional block-data sections terminated by
// TC_ENDBLOCKDATA, per spec `4.C`.
func (w *walker) skipCustomData() error {
	for {
		tag, err := w.br.peekTag()
		if err != nil {
			return err
		}

		switch tag {
		case tcBlockData, tcBlockDataLong:
			if err := w.br.setBlockMode(true); err != nil {
				return err
			}

			if err := w.br.skipToEndOfBlocks(); err != nil {
				return err
			}

			if err := w.br.setBlockMode(false); err != nil {
				return err
			}

		case tcEndBlockData:
			_, err := w.br.readUint8()
			return err

		default:
			return nil
		}
	}
}

// parseEnum handles TC_ENUM, per SUPPLEMENTED FEATURE 5: a deferred
// handle assigned before its class descriptor is parsed (the enum's
// handle must exist before the descriptor can reference it), followed
// by the constant's name, grounded in the teacher's
// parseEnum/newDeferredHandle rather than the Java original.
func (w *walker) parseEnum() error {
	if _, err := w.br.readUint8(); err != nil { // TC_ENUM
		return err
	}

	h := w.nextHandle()

	name, err := w.parseClassDesc()
	if err != nil {
		return err
	}

	if err := w.parseTypeString(); err != nil { // enum constant name: a string record
		return errors.Wrap(err, "error reading enum constant name")
	}

	w.setLabel(h, name)

	if parent, ok := w.topParent(); ok {
		w.addEdge(parent, h)
	}

	return nil
}

// parseClass handles TC_CLASS, a thin class-handle wrapper grounded in
// the teacher's parseClass: a class descriptor followed by its own
// handle assignment, per SUPPLEMENTED FEATURE 6.
func (w *walker) parseClass() (string, error) {
	if _, err := w.br.readUint8(); err != nil { // TC_CLASS
		return "", err
	}

	name, err := w.parseClassDesc()
	if err != nil {
		return "", err
	}

	h := w.nextHandle()
	w.setLabel(h, name)

	return name, nil
}

func suidHex(suid int64) string {
	const hexDigits = "0123456789abcdef"

	b := make([]byte, 16)
	u := uint64(suid)

	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[u&0xf]
		u >>= 4
	}

	return string(b)
}
