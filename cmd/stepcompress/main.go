// Command stepcompress rewrites a stepped container file with every variable
// partitioned across SPMD workers and compressed block by block with a named
// operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/stepmet/stepmet/comm"
	"github.com/stepmet/stepmet/pipeline"
	"github.com/stepmet/stepmet/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: stepcompress [-workers N] <input> <output> <axis> <compressor> <errorBound> [variable ...]

Partitions each variable of <input> along dimension <axis> across N workers,
compresses every block with <compressor> (none, zstd, s2, lz4) and writes the
result to <output>. <errorBound> is passed to the operator unexamined. With no
variable names, every variable in each step is processed.
`)
	flag.PrintDefaults()
}

func main() {
	workers := flag.Int("workers", 1, "number of SPMD workers")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 5 {
		usage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	input, output := args[0], args[1]
	axis, err := strconv.Atoi(args[2])
	if err != nil {
		logger.Error("invalid axis", slog.String("axis", args[2]))
		os.Exit(1)
	}
	if *workers < 1 {
		logger.Error("invalid worker count", slog.Int("workers", *workers))
		os.Exit(1)
	}

	cfg := pipeline.CompressConfig{
		Axis: axis,
		Operator: store.Operator{
			Name:   args[3],
			Params: map[string]string{"accuracy": args[4]},
		},
		Variables: args[5:],
		Logger:    logger,
	}

	stats, err := run(input, output, *workers, cfg, logger)
	if err != nil {
		logger.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("steps=%d processed=%d skipped=%d\n", stats.Steps, stats.Processed, stats.Skipped)
}

// run opens per-worker source and sink handles up front (the sink needs its
// full session quorum before the first step), then drives the workers.
func run(input, output string, workers int, cfg pipeline.CompressConfig, logger *slog.Logger) (pipeline.RunStats, error) {
	sink, err := store.CreateFileSink(output)
	if err != nil {
		return pipeline.RunStats{}, err
	}

	sources := make([]*store.FileSource, workers)
	sessions := make([]*store.SinkSession, workers)
	for r := 0; r < workers; r++ {
		src, err := store.OpenFileSource(input)
		if err != nil {
			for _, s := range sources[:r] {
				s.Close()
			}
			return pipeline.RunStats{}, err
		}
		sources[r] = src
		sessions[r] = sink.Session()
	}

	comms := comm.NewLocalGroup(workers)
	results := make([]pipeline.RunStats, workers)

	g, ctx := errgroup.WithContext(context.Background())
	for r := 0; r < workers; r++ {
		r := r
		g.Go(func() error {
			stats, err := pipeline.RunCompress(ctx, comms[r], sources[r], sessions[r], cfg)
			results[r] = stats

			// The last session close flushes and closes the output file.
			if cerr := sources[r].Close(); err == nil {
				err = cerr
			}
			if cerr := sessions[r].Close(); err == nil {
				err = cerr
			}

			return err
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.RunStats{}, err
	}

	total := results[0]
	for _, s := range results[1:] {
		total.Processed += s.Processed
	}
	logger.Info("output written", slog.String("path", output), slog.Int("steps", total.Steps))

	return total, nil
}
