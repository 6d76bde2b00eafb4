package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/alecthomas/units"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/wakamesoba98/dosscan"
	"github.com/wakamesoba98/dosscan/internal/sink"
)

var (
	app = kingpin.New("dosscan", "Scan a Java serialized-object stream for deserialization DoS ceilings, without reconstructing objects.")

	scanCmd          = app.Command("scan", "Scan a file and print a verdict.").Default()
	scanPath         = scanCmd.Arg("path", "Path to the serialized stream (optionally .gz/.snappy/.zst).").Required().String()
	scanArraySizeMax = byteSizeFlag(scanCmd.Flag("array-size-max", "Maximum cumulative array length / interface count before ArrayTooLarge.").Default("64KiB"))
	scanReferenceMax = byteSizeFlag(scanCmd.Flag("reference-max", "Maximum reference-graph traversal count before ReferenceTooComplex.").Default("32KiB"))
	scanTimeout      = durationFlag(scanCmd.Flag("timeout", "Abort the scan after this long (e.g. 30s, 2m).").Default("30s"))
	scanQuiet        = scanCmd.Flag("quiet", "Suppress diagnostic events; print only the final verdict.").Bool()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case scanCmd.FullCommand():
		os.Exit(runScan(*scanPath, int64(*scanArraySizeMax), int64(*scanReferenceMax), *scanTimeout, *scanQuiet))
	}
}

// byteSizeFlag parses a kingpin flag with github.com/alecthomas/units'
// human-readable byte sizes ("64KiB", "65536") into a *int64.
func byteSizeFlag(clause *kingpin.FlagClause) *int64 {
	var v int64
	clause.SetValue(&byteSizeValue{target: &v})

	return &v
}

type byteSizeValue struct{ target *int64 }

func (b *byteSizeValue) String() string {
	if b.target == nil {
		return ""
	}

	return fmt.Sprintf("%d", *b.target)
}

func (b *byteSizeValue) Set(s string) error {
	n, err := units.ParseStrictBytes(s)
	if err != nil {
		return err
	}

	*b.target = n

	return nil
}

// durationFlag parses a kingpin flag with
// github.com/xhit/go-str2duration/v2, which accepts day/week/month
// units beyond the standard library's time.ParseDuration.
func durationFlag(clause *kingpin.FlagClause) *time.Duration {
	var v time.Duration
	clause.SetValue(&durationValue{target: &v})

	return &v
}

type durationValue struct{ target *time.Duration }

func (d *durationValue) String() string {
	if d.target == nil {
		return ""
	}

	return d.target.String()
}

func (d *durationValue) Set(s string) error {
	parsed, err := str2duration.ParseDuration(s)
	if err != nil {
		return err
	}

	*d.target = parsed

	return nil
}

func runScan(path string, arraySizeMax, referenceMax int64, timeout time.Duration, quiet bool) int {
	src, err := openSource(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer src.Close()

	var s dosscan.Sink = dosscan.NopSink{}
	if !quiet {
		s = sink.NewTerminal(os.Stdout, true)
	}

	scanner := dosscan.NewScanner(
		dosscan.WithArraySizeMax(arraySizeMax),
		dosscan.WithReferenceMax(referenceMax),
		dosscan.WithSink(s),
	)

	done := make(chan struct{})

	var v dosscan.Verdict
	var scanErr error

	go func() {
		defer close(done)
		v, scanErr = scanner.Check(src)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		src.Close()
		fmt.Fprintln(os.Stderr, "scan timed out")
		return 2
	}

	if scanErr != nil {
		fmt.Fprintln(os.Stderr, scanErr)
		return 2
	}

	if quiet {
		sink.NewTerminal(os.Stdout, true).Verdict(v)
	}

	if !v.Safe {
		return 1
	}

	return 0
}
