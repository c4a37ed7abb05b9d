package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/stepmet/stepmet/comm"
	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/metrics"
	"github.com/stepmet/stepmet/store"
)

// AnalyzeConfig controls a metric analysis run.
type AnalyzeConfig struct {
	// Axis is the global dimension index the workers partition along.
	Axis int
	// Variables restricts the run to the named variables. Empty means every
	// variable present in both catalogs.
	Variables []string
	// MaxSteps stops the run after that many paired steps. Zero means all.
	MaxSteps int
	// Logger receives per-step metric lines and skip reports. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// RunAnalyze compares the original and processed sources step by step and
// returns per-variable metric summaries.
//
// The sources advance in lockstep; comparison stops at the shorter stream.
// Each worker accumulates raw statistics over its shard, the statistics are
// reduced collectively, and the derived metrics are folded into the
// variable's summary. The compression ratio uses the processed source's
// measured stored bytes when it can report them.
//
// RunAnalyze is collective over c, like RunCompress: skip decisions are
// catalog-driven so all workers skip identical pairs, and unrecoverable
// failures abort the group.
//
// Returns:
//   - map[string]*metrics.Summary: Cross-step aggregate per compared variable
//   - RunStats: This worker's step/pair counts
//   - error: First unrecoverable failure, nil on a complete run
func RunAnalyze(ctx context.Context, c comm.Communicator, orig, proc store.Source, cfg AnalyzeConfig) (map[string]*metrics.Summary, RunStats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stats RunStats
	summaries := make(map[string]*metrics.Summary)

	status, err := NewPairedCursor(orig, proc).ForEachStep(ctx, func(step *PairStep) error {
		if cfg.MaxSteps > 0 && step.Index() >= cfg.MaxSteps {
			return errStopIteration
		}
		stats.Steps++

		return analyzeStep(ctx, step, c, cfg, logger, summaries, &stats)
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		c.Abort(err)
		return summaries, stats, err
	}

	if c.Rank() == 0 {
		if status == OneExhausted {
			logger.Warn("sources ended at different step counts; compared the common prefix",
				slog.Int("steps", stats.Steps))
		}
		names := make([]string, 0, len(summaries))
		for name := range summaries {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			logger.Info("variable summary", slog.String("variable", name), slog.String("summary", summaries[name].String()))
		}
	}

	return summaries, stats, nil
}

// analyzeStep runs the shard pass, collective reduction and derivation for
// each comparable variable of one paired step.
func analyzeStep(ctx context.Context, step *PairStep, c comm.Communicator, cfg AnalyzeConfig, logger *slog.Logger, summaries map[string]*metrics.Summary, stats *RunStats) error {
	origCat := step.Orig.Catalog()
	procCat := step.Proc.Catalog()

	for _, name := range pairedNames(origCat, procCat, cfg.Variables) {
		origInfo, origOK := origCat[name]
		procInfo, procOK := procCat[name]
		switch {
		case !origOK || !procOK:
			skipPair(c, logger, stats, step, name, "not present in both sources")
			continue
		case origInfo.Type != procInfo.Type:
			skipPair(c, logger, stats, step, name,
				fmt.Sprintf("type mismatch: %s vs %s", origInfo.Type, procInfo.Type))
			continue
		case !element.Supported(origInfo.Type):
			skipPair(c, logger, stats, step, name, fmt.Sprintf("unsupported type %s", origInfo.Type))
			continue
		case !slices.Equal(origInfo.Shape, procInfo.Shape):
			skipPair(c, logger, stats, step, name,
				fmt.Sprintf("shape mismatch: %v vs %v", origInfo.Shape, procInfo.Shape))
			continue
		}

		region, err := grid.Partition(origInfo.Shape, cfg.Axis, c.Size(), c.Rank())
		if err != nil {
			skipPair(c, logger, stats, step, name, err.Error())
			continue
		}

		origBuf, err := step.Orig.Read(name, region)
		if err != nil {
			return fmt.Errorf("read original %s step %d: %w", name, step.Index(), err)
		}
		procBuf, err := step.Proc.Read(name, region)
		if err != nil {
			return fmt.Errorf("read processed %s step %d: %w", name, step.Index(), err)
		}

		local, err := metrics.Accumulate(origBuf, procBuf)
		if err != nil {
			return fmt.Errorf("accumulate %s step %d: %w", name, step.Index(), err)
		}
		global, err := metrics.Reduce(ctx, c, local)
		if err != nil {
			return err
		}

		res := metrics.Derive(global, origInfo.Type.Size())
		if comp, ok := step.Proc.CompressedBytes(name); ok {
			if err := res.SetRatio(comp); err != nil && c.Rank() == 0 {
				logger.Warn("compression ratio unavailable",
					slog.String("variable", name),
					slog.Int("step", step.Index()),
					slog.String("reason", err.Error()))
			}
		}

		sum := summaries[name]
		if sum == nil {
			sum = &metrics.Summary{}
			summaries[name] = sum
		}
		sum.Add(res)
		stats.Processed++

		if c.Rank() == 0 {
			logger.Info("step metrics",
				slog.Int("step", step.Index()),
				slog.String("variable", name),
				slog.Float64("nrmse", res.NRMSE),
				slog.Float64("linf", res.Linf),
				slog.Float64("psnr", res.PSNR),
				slog.Float64("ratio", res.Ratio))
		}
	}

	return nil
}

// pairedNames resolves the variable selection against the pair of catalogs.
// Unselected runs compare the union so absences are reported, not silently
// dropped; the order is deterministic across workers.
func pairedNames(origCat, procCat map[string]store.VarInfo, selected []string) []string {
	if len(selected) > 0 {
		return selected
	}

	union := make(map[string]struct{}, len(origCat))
	for name := range origCat {
		union[name] = struct{}{}
	}
	for name := range procCat {
		union[name] = struct{}{}
	}

	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// skipPair records a reported per-pair skip, mirroring skip for single-source
// runs.
func skipPair(c comm.Communicator, logger *slog.Logger, stats *RunStats, step *PairStep, name, reason string) {
	stats.Skipped++
	if c.Rank() == 0 {
		logger.Warn("skipping variable pair",
			slog.String("variable", name),
			slog.Int("step", step.Index()),
			slog.String("reason", reason))
	}
}
