package dosscan

import "io"

// Option configures a Scanner, following the teacher's functional-option
// constructor pattern (SetMaxDataBlockSize generalized to the new
// ceilings and limits).
type Option func(*Scanner)

// WithArraySizeMax overrides ARRAY_SIZE_MAX (default 65536).
func WithArraySizeMax(n int64) Option {
	return func(s *Scanner) { s.arraySizeMax = n }
}

// WithReferenceMax overrides REFERENCE_MAX (default 32768).
func WithReferenceMax(n int64) Option {
	return func(s *Scanner) { s.referenceMax = n }
}

// WithMaxStringLen overrides the modified-UTF-8 body allocation cap
// (default 1<<20 bytes).
func WithMaxStringLen(n int) Option {
	return func(s *Scanner) { s.maxStringLen = n }
}

// WithSink installs a diagnostic event sink. The default is NopSink.
func WithSink(sink Sink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// Scanner holds the configuration for a scan, per spec `4.F`. It is
// stateless between calls to Check; all per-scan state lives in the
// byteSource/blockReader/walker/analyzer constructed inside Check.
type Scanner struct {
	arraySizeMax int64
	referenceMax int64
	maxStringLen int
	sink         Sink
}

// NewScanner builds a Scanner with the default ceilings, the default
// string length cap, and a NopSink, customized by opts.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		arraySizeMax: defaultArraySizeMax,
		referenceMax: defaultReferenceMax,
		maxStringLen: defaultMaxStringLen,
		sink:         NopSink{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Check constructs B over A over rd, constructs C and D, runs the
// header check, the dispatch loop (downgrading UnexpectedEof to a
// warning), then the reference-graph analysis, and returns a single
// Verdict, per spec `4.F`. The underlying source is released on every
// exit path.
func (s *Scanner) Check(rd io.Reader) (Verdict, error) {
	src := newByteSource(rd)
	defer src.close()

	br := newBlockReader(src)
	br.maxStringLen = s.maxStringLen
	an := newAnalyzer(s.arraySizeMax, s.referenceMax, s.sink)
	w := newWalker(br, an, s.sink)

	if err := w.checkHeader(); err != nil {
		return Verdict{}, err
	}

	if err := w.run(); err != nil {
		if causeIs(err, ErrUnexpectedEOF) {
			s.sink.Warn(err.Error())
		} else if causeIs(err, ErrArrayTooLarge) {
			v := unsafeVerdict(ReasonArrayTooLarge)
			s.sink.Verdict(v)

			return v, nil
		} else {
			return Verdict{}, err
		}
	}

	if err := an.checkReferenceGraph(w.edges); err != nil {
		if causeIs(err, ErrReferenceTooComplex) {
			v := unsafeVerdict(ReasonReferenceTooComplex)
			s.sink.Verdict(v)

			return v, nil
		}

		return Verdict{}, err
	}

	s.sink.Info("object reference graph is safe")

	v := safeVerdict()
	s.sink.Verdict(v)

	return v, nil
}

// Check runs a scan with default configuration and a NopSink. It is
// the simplest entry point, mirroring the teacher's package-level
// ParseSerializedObject convenience wrapper.
func Check(rd io.Reader) (Verdict, error) {
	return NewScanner().Check(rd)
}
