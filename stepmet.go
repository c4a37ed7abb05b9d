// Package stepmet provides a distributed, step-wise pipeline for partitioning
// typed N-dimensional arrays across SPMD workers and reducing per-worker
// statistics into global quality metrics.
//
// Stepmet reads and writes stepped container files: ordered sequences of
// steps, each carrying a catalog of named, typed, N-dimensional variables.
// Workers decompose each variable along a chosen axis into disjoint shards
// (the last worker absorbs the remainder), operate on their shards and
// combine raw statistics with collective reductions, so derived metrics such
// as NRMSE, L∞ and PSNR are computed exactly once from global totals rather
// than averaged across workers.
//
// # Core Features
//
//   - Axis partitioning with exact coverage: shards are pairwise disjoint and
//     jointly cover the dimension, including zero-extent shards when the
//     worker count exceeds the extent
//   - A closed set of element types (float32/float64, 32/64-bit signed and
//     unsigned integers) dispatched through one generic kernel table
//   - Collective reduction of raw statistics (sum, min, max) over in-process
//     worker groups, with group-wide abort instead of deadlock on failure
//   - Per-block compression (Zstd, S2, LZ4) with measured stored sizes, so
//     compression ratios are never estimates
//   - Hash-based variable identification (64-bit xxHash64) and CRC32
//     checksummed payloads in the container format
//
// # Basic Usage
//
// Comparing a processed file against its original across 4 workers:
//
//	import "github.com/stepmet/stepmet"
//
//	comms := stepmet.NewLocalGroup(4)
//	g, ctx := errgroup.WithContext(context.Background())
//	for r := range 4 {
//	    g.Go(func() error {
//	        orig, _ := stepmet.OpenSource("original.stm")
//	        proc, _ := stepmet.OpenSource("processed.stm")
//	        defer orig.Close()
//	        defer proc.Close()
//
//	        summaries, _, err := pipeline.RunAnalyze(ctx, comms[r], orig, proc,
//	            pipeline.AnalyzeConfig{Axis: 0})
//	        if r == 0 && err == nil {
//	            for name, s := range summaries {
//	                fmt.Println(name, s)
//	            }
//	        }
//	        return err
//	    })
//	}
//	err := g.Wait()
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the store and
// comm packages. The pipeline package holds the runners (compress, analyze,
// extract); grid, element and metrics hold the partitioning, typed-kernel and
// reduction layers for direct use.
package stepmet

import (
	"github.com/stepmet/stepmet/comm"
	"github.com/stepmet/stepmet/store"
)

// OpenSource opens a stepped container file for reading. Each worker opens
// its own source; sources are single-goroutine handles.
//
// Parameters:
//   - path: Container file path
//
// Returns:
//   - *store.FileSource: Open source positioned before the first step
//   - error: Open or header validation failure
func OpenSource(path string) (*store.FileSource, error) {
	return store.OpenFileSource(path)
}

// CreateSink creates a stepped container file for writing. Obtain one
// SinkSession per worker via the returned sink's Session method; all sessions
// must exist before the first step begins.
//
// Parameters:
//   - path: Output file path, created or truncated
//
// Returns:
//   - *store.FileSink: Shared sink host
//   - error: Creation or header write failure
func CreateSink(path string) (*store.FileSink, error) {
	return store.CreateFileSink(path)
}

// NewLocalGroup creates an in-process collective group of the given size,
// returning one Communicator per worker rank. See comm.NewLocalGroup.
func NewLocalGroup(size int) []comm.Communicator {
	return comm.NewLocalGroup(size)
}
