// +build gofuzz

package dosscan

import "bytes"

// Fuzz is the go-fuzz entrypoint for fuzzing the scanner against
// arbitrary byte streams.
func Fuzz(data []byte) int {
	v, err := Check(bytes.NewReader(data))
	if err != nil {
		return 0
	}

	if !v.Safe {
		return 0
	}

	return 1
}
