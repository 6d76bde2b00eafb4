package dosscan

import "github.com/pkg/errors"

// analyzer implements the two DoS ceilings of spec `4.D`: a running
// sum of every array length and proxy interface count seen during the
// walk, and a post-walk bounded-DFS scan over the reference-edge
// graph the walker built.
type analyzer struct {
	arraySizeMax int64
	referenceMax int64

	totalArraySize int64

	sink Sink
}

func newAnalyzer(arraySizeMax, referenceMax int64, sink Sink) *analyzer {
	if sink == nil {
		sink = NopSink{}
	}

	return &analyzer{
		arraySizeMax: arraySizeMax,
		referenceMax: referenceMax,
		sink:         sink,
	}
}

// recordArraySize adds n to the running total, per spec `4.D`: lengths
// are sign-extended into 64 bits so a lone negative length cannot
// wrap silently; a negative length contributes zero to the sum but is
// still allowed through (the caller never multiplies it).
func (a *analyzer) recordArraySize(n int64) error {
	if n < 0 {
		return nil
	}

	a.totalArraySize += n

	if a.totalArraySize > a.arraySizeMax {
		return errors.WithStack(ErrArrayTooLarge)
	}

	return nil
}

// checkReferenceGraph runs the bounded-DFS scan of spec `4.D.1-3` over
// every handle with recorded incoming edges. It has no visited set: the
// refCount ceiling is the sole termination guard, intentionally
// over-counting cycles and diamonds.
func (a *analyzer) checkReferenceGraph(edges map[int32]map[int32]bool) error {
	for target, sources := range edges {
		if len(sources) == 0 {
			continue
		}

		refCount := 0

		if err := a.traverse(target, edges, &refCount); err != nil {
			return err
		}

		a.sink.Graph(int(target), refCount)
	}

	return nil
}

func (a *analyzer) traverse(handle int32, edges map[int32]map[int32]bool, refCount *int) error {
	sources, ok := edges[handle]
	if !ok {
		return nil
	}

	for s := range sources {
		*refCount++

		if int64(*refCount) > a.referenceMax {
			return errors.WithStack(ErrReferenceTooComplex)
		}

		if s != 0 {
			if err := a.traverse(s, edges, refCount); err != nil {
				return err
			}
		}
	}

	return nil
}
