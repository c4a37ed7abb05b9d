package metrics

import (
	"fmt"
	"math"

	"github.com/stepmet/stepmet/errs"
)

// Result is the derived quality metrics of one (variable, step), computed
// once from globally reduced statistics.
//
// When the global element count is zero every metric is NaN: an empty
// comparison is undefined, not a divide-by-zero crash. When the arrays are
// identical NRMSE is 0 and PSNR is +Inf ("infinite fidelity").
type Result struct {
	Elements uint64

	RMSE   float64 // sqrt(sum-sq-error / count)
	L2Norm float64 // sqrt(sum-sq-original / count)
	NRMSE  float64 // RMSE / L2Norm, 0 when L2Norm == 0
	Linf   float64 // largest absolute pointwise error
	Range  float64 // global max - global min of the original
	PSNR   float64 // 20*log10(range) - 10*log10(RMSE^2), +Inf when RMSE == 0

	OriginalBytes   uint64
	CompressedBytes uint64
	Ratio           float64 // OriginalBytes / CompressedBytes, NaN until SetRatio
}

// Derive computes the metrics from globally reduced statistics.
//
// Parameters:
//   - g: Reduced statistics, identical on every worker
//   - elemSize: Element width in bytes, for the original byte count
//
// Returns:
//   - Result: Derived metrics; Ratio is NaN until SetRatio supplies a
//     measured compressed size
func Derive(g Global, elemSize int) Result {
	r := Result{
		Elements:      g.Count,
		OriginalBytes: g.Count * uint64(elemSize),
		Ratio:         math.NaN(),
	}

	if g.Count == 0 {
		r.RMSE = math.NaN()
		r.L2Norm = math.NaN()
		r.NRMSE = math.NaN()
		r.Linf = math.NaN()
		r.Range = math.NaN()
		r.PSNR = math.NaN()

		return r
	}

	n := float64(g.Count)
	r.RMSE = math.Sqrt(g.SumSqErr / n)
	r.L2Norm = math.Sqrt(g.SumSqOrig / n)
	r.Linf = g.MaxAbsErr
	r.Range = g.Max - g.Min

	if r.L2Norm > 0 {
		r.NRMSE = r.RMSE / r.L2Norm
	}

	if r.RMSE > 0 {
		r.PSNR = 20*math.Log10(r.Range) - 10*math.Log10(r.RMSE*r.RMSE)
	} else {
		r.PSNR = math.Inf(1)
	}

	return r
}

// SetRatio records the measured compressed byte count and derives the
// compression ratio.
//
// Returns:
//   - error: errs.ErrZeroCompressedSize when compressedBytes is 0; the ratio
//     is undefined and left NaN
func (r *Result) SetRatio(compressedBytes uint64) error {
	if compressedBytes == 0 {
		return errs.ErrZeroCompressedSize
	}
	r.CompressedBytes = compressedBytes
	r.Ratio = float64(r.OriginalBytes) / float64(compressedBytes)

	return nil
}

// Summary folds finalized per-step results for one variable into the
// human-facing cross-step aggregate. It is a pure fold: only already-derived
// results enter, no raw statistics accumulate across steps.
type Summary struct {
	Steps int // steps folded in

	sumNRMSE   float64
	sumRatio   float64
	ratioSteps int
	maxLinf    float64
}

// Add folds one step's result into the summary.
func (s *Summary) Add(r Result) {
	s.Steps++
	s.sumNRMSE += r.NRMSE
	if !math.IsNaN(r.Ratio) {
		s.sumRatio += r.Ratio
		s.ratioSteps++
	}
	if r.Linf > s.maxLinf {
		s.maxLinf = r.Linf
	}
}

// AvgNRMSE returns the mean per-step NRMSE, NaN when no steps were added.
func (s *Summary) AvgNRMSE() float64 {
	if s.Steps == 0 {
		return math.NaN()
	}

	return s.sumNRMSE / float64(s.Steps)
}

// AvgRatio returns the mean per-step compression ratio over the steps where
// a measured ratio was available, NaN when there were none.
func (s *Summary) AvgRatio() float64 {
	if s.ratioSteps == 0 {
		return math.NaN()
	}

	return s.sumRatio / float64(s.ratioSteps)
}

// MaxLinf returns the largest per-step L∞ error.
func (s *Summary) MaxLinf() float64 {
	return s.maxLinf
}

func (s *Summary) String() string {
	return fmt.Sprintf("steps=%d avg_nrmse=%e avg_ratio=%.2f max_linf=%e",
		s.Steps, s.AvgNRMSE(), s.AvgRatio(), s.MaxLinf())
}
