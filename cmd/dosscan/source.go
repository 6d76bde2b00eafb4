package main

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// openSource opens path and, if its extension names a known
// compression scheme, wraps it in a transparent decompressing reader,
// mirroring the teacher sibling's per-block compressionType switch
// (Snappy/Zstd) generalized to whole-file extensions plus gzip.
func openSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening input file")
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "error opening gzip stream")
		}

		return readCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil

	case strings.HasSuffix(path, ".snappy"):
		raw, err := io.ReadAll(f)
		f.Close()

		if err != nil {
			return nil, errors.Wrap(err, "error reading snappy input file")
		}

		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, errors.Wrap(err, "error decoding snappy stream")
		}

		return io.NopCloser(bytes.NewReader(decoded)), nil

	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "error opening zstd stream")
		}

		return readCloser{Reader: zr.IOReadCloser(), closers: []io.Closer{zr.IOReadCloser(), f}}, nil

	default:
		return f, nil
	}
}

// readCloser composes a Reader with a set of Closers, all of which are
// closed (in order) on Close.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var firstErr error

	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
