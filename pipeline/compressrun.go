package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/stepmet/stepmet/comm"
	"github.com/stepmet/stepmet/compress"
	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/store"
)

// CompressConfig controls a compression run.
type CompressConfig struct {
	// Axis is the global dimension index the workers partition along.
	Axis int
	// Operator is the compression operator applied to every written block.
	// Parameters ride along to the sink unexamined.
	Operator store.Operator
	// Variables restricts the run to the named variables. Empty means every
	// variable in each step's catalog.
	Variables []string
	// Logger receives progress and per-variable skip reports. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// RunStats counts a runner's work. Per worker; identical across workers for
// Steps and Skipped since skip decisions are catalog-driven.
type RunStats struct {
	Steps     int // steps processed
	Processed int // (variable, step) blocks handled by this worker
	Skipped   int // (variable, step) pairs skipped with a reported error
}

// RunCompress copies each step of src into sink, partitioned across the
// worker group along cfg.Axis and compressed per block with cfg.Operator.
//
// RunCompress is collective: every worker of c must call it with the same
// configuration over sessions of the same source file and sink. Per-variable
// problems (unsupported type, partition axis out of range, shape drift,
// missing named variable) are reported and skipped; I/O failures end the run
// and abort the group so no peer is left blocked in a collective.
//
// Returns:
//   - RunStats: This worker's step/block counts
//   - error: First unrecoverable failure, nil on a complete run
func RunCompress(ctx context.Context, c comm.Communicator, src store.Source, sink store.Sink, cfg CompressConfig) (RunStats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Operator validity is a run-level config error, not a per-variable skip.
	if _, err := compress.ResolveOperator(cfg.Operator.Name); err != nil {
		return RunStats{}, err
	}

	var stats RunStats
	reg := NewRegistry(sink)

	err := NewSequencer(src).ForEachStep(ctx, func(step *Step) error {
		stats.Steps++
		if err := sink.BeginStep(); err != nil {
			return err
		}
		if err := writeStep(step, c, reg, sink, cfg, logger, &stats); err != nil {
			// Wake peers blocked in the sink's collective EndStep before
			// propagating; the step cannot flush. EndStep keeps the session's
			// begin/end pairing intact on the poisoned sink.
			failSink(sink, err)
			_ = sink.EndStep()
			return err
		}
		if err := sink.EndStep(); err != nil {
			return err
		}

		return c.Barrier(ctx)
	})
	if err != nil {
		c.Abort(err)
		failSink(sink, err)
		return stats, err
	}

	if c.Rank() == 0 {
		logger.Info("compression run complete",
			slog.Int("steps", stats.Steps),
			slog.Int("skipped", stats.Skipped))
	}

	return stats, nil
}

// writeStep partitions and writes this worker's shard of each target variable.
func writeStep(step *Step, c comm.Communicator, reg *Registry, sink store.Sink, cfg CompressConfig, logger *slog.Logger, stats *RunStats) error {
	catalog := step.Catalog()
	for _, name := range targetNames(catalog, cfg.Variables) {
		info, ok := catalog[name]
		if !ok {
			skip(c, logger, stats, step, name, "not present in step")
			continue
		}
		if !element.Supported(info.Type) {
			skip(c, logger, stats, step, name, fmt.Sprintf("unsupported type %s", info.Type))
			continue
		}

		region, err := grid.Partition(info.Shape, cfg.Axis, c.Size(), c.Rank())
		if err != nil {
			skip(c, logger, stats, step, name, err.Error())
			continue
		}

		def, err := reg.Obtain(name, info.Type, info.Shape, region, cfg.Operator)
		if err != nil {
			// Shape or type drifted from the run-long definition.
			skip(c, logger, stats, step, name, err.Error())
			continue
		}

		buf, err := step.Read(name, region)
		if err != nil {
			return fmt.Errorf("read %s step %d: %w", name, step.Index(), err)
		}
		if err := sink.Put(def, buf); err != nil {
			return fmt.Errorf("write %s step %d: %w", name, step.Index(), err)
		}
		stats.Processed++
	}

	return nil
}

// targetNames resolves the run's variable selection against a step catalog.
// The order is deterministic so every worker walks variables identically.
func targetNames(catalog map[string]store.VarInfo, selected []string) []string {
	if len(selected) > 0 {
		return selected
	}

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// skip records a reported per-variable skip. Skip decisions derive from the
// step catalog, so every worker skips the same pairs; rank 0 reports.
func skip(c comm.Communicator, logger *slog.Logger, stats *RunStats, step *Step, name, reason string) {
	stats.Skipped++
	if c.Rank() == 0 {
		logger.Warn("skipping variable",
			slog.String("variable", name),
			slog.Int("step", step.Index()),
			slog.String("reason", reason))
	}
}

// failSink poisons a sink that supports it, releasing peers blocked in its
// collective EndStep.
func failSink(sink store.Sink, err error) {
	if f, ok := sink.(interface{ Fail(error) }); ok {
		f.Fail(err)
	}
}
