// Command stepextract pulls one variable out of a stepped container file and
// writes it as headerless little-endian flat binary, reporting the rank-5
// padded shape and value range.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/stepmet/stepmet/pipeline"
	"github.com/stepmet/stepmet/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: stepextract <input> <variable> <output>

Scans <input> for the first step containing <variable>, reads it whole and
writes its elements to <output> as flat little-endian binary with no header.
Exits with status 1 when no step contains the variable.
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		usage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	src, err := store.OpenFileSource(args[0])
	if err != nil {
		logger.Error("open input", slog.Any("error", err))
		os.Exit(1)
	}

	report, err := pipeline.RunExtract(context.Background(), src, pipeline.ExtractConfig{
		Variable: args[1],
		OutPath:  args[2],
		Logger:   logger,
	})
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("extract failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("step=%d shape=%v elements=%d bytes=%d min=%g max=%g\n",
		report.Step, report.Shape, report.Elements, report.Bytes, report.Min, report.Max)
}
