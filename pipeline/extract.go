package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/stepmet/stepmet/element"
	"github.com/stepmet/stepmet/endian"
	"github.com/stepmet/stepmet/errs"
	"github.com/stepmet/stepmet/grid"
	"github.com/stepmet/stepmet/store"
)

// extractTargetRank is the default rank variables are reshaped to on
// extraction, matching downstream tools that expect five dimensions.
const extractTargetRank = 5

// ExtractConfig controls a variable extraction.
type ExtractConfig struct {
	// Variable names the variable to extract.
	Variable string
	// OutPath is the output file. The payload is headerless little-endian
	// element data, row-major over the padded shape.
	OutPath string
	// TargetRank pads the variable's shape with leading 1-extents up to this
	// rank. Zero means 5; a shape already at or above the target is kept.
	TargetRank int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// ExtractReport describes one completed extraction.
type ExtractReport struct {
	Step     int      // step the variable was taken from
	Shape    []uint64 // padded shape
	Elements uint64
	Bytes    uint64 // payload size written
	Min, Max float64
}

// RunExtract scans src for the first step containing the configured variable,
// reads it whole and writes it as a flat headerless binary file.
//
// Extraction is a serial, single-worker operation: the full variable is read
// by one reader, not partitioned.
//
// Returns:
//   - *ExtractReport: Padded shape, size and value range of the written data
//   - error: errs.ErrVariableNotFound when no step contains the variable,
//     errs.ErrUnsupportedType for a variable outside the closed type set, or
//     an I/O failure
func RunExtract(ctx context.Context, src store.Source, cfg ExtractConfig) (*ExtractReport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	target := cfg.TargetRank
	if target == 0 {
		target = extractTargetRank
	}

	var report *ExtractReport
	err := NewSequencer(src).ForEachStep(ctx, func(step *Step) error {
		info, ok := step.Catalog()[cfg.Variable]
		if !ok {
			return nil
		}
		if !element.Supported(info.Type) {
			return fmt.Errorf("%w: %s for variable %s", errs.ErrUnsupportedType, info.Type, cfg.Variable)
		}

		buf, err := step.Read(cfg.Variable, grid.Full(info.Shape))
		if err != nil {
			return err
		}

		raw := buf.Encode(endian.GetLittleEndianEngine())
		if err := os.WriteFile(cfg.OutPath, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", cfg.OutPath, err)
		}

		padded := grid.PadRank(info.Shape, target)
		report = &ExtractReport{
			Step:     step.Index(),
			Shape:    padded,
			Elements: uint64(buf.Len()),
			Bytes:    uint64(len(raw)),
		}
		if min, max, ok := buf.MinMax(); ok {
			report.Min, report.Max = min, max
		}

		logger.Info("extracted variable",
			slog.String("variable", cfg.Variable),
			slog.Int("step", step.Index()),
			slog.Any("shape", padded),
			slog.Uint64("bytes", report.Bytes))

		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s in any step", errs.ErrVariableNotFound, cfg.Variable)
	}

	return report, nil
}
