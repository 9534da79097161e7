// Package compare turns a face-verification call into a fixed-shape comparison result.
package compare

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-compare/internal/faceverify"
)

// Invoker runs comparisons against a verifier with a fixed model and metric.
// It never returns an error: every fault is folded into a failure Result.
type Invoker struct {
	verifier faceverify.Verifier
	logger   *zap.Logger
}

// NewInvoker wires an Invoker to verifier.
func NewInvoker(verifier faceverify.Verifier, logger *zap.Logger) *Invoker {
	return &Invoker{verifier: verifier, logger: logger.Named("compare")}
}

// Compare verifies the images at pathA and pathB. The paths are handed to the verifier as is.
func (inv *Invoker) Compare(ctx context.Context, pathA, pathB string) Result {
	return inv.CompareImages(ctx, faceverify.Image{Path: pathA}, faceverify.Image{Path: pathB})
}

// CompareImages verifies two images given by path or by content.
func (inv *Invoker) CompareImages(ctx context.Context, a, b faceverify.Image) Result {
	start := time.Now()
	verdict, err := inv.verifier.Verify(ctx, faceverify.Request{
		ImageA: a,
		ImageB: b,
		Model:  faceverify.ModelVGGFace,
		Metric: faceverify.MetricCosine,
	})
	if err == nil {
		err = checkVerdict(verdict)
	}
	if err != nil {
		inv.logger.Warn("comparison failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
		return Failure(FaultMessage(err))
	}

	inv.logger.Info("comparison finished",
		zap.Bool("verified", verdict.Verified),
		zap.Float64("distance", verdict.Distance),
		zap.Float64("threshold", verdict.Threshold),
		zap.Duration("latency", time.Since(start)),
	)
	return Success(verdict.Verified, verdict.Distance, verdict.Threshold)
}

// FaultMessage is the text reported for err: the service's own wording when it sent one.
func FaultMessage(err error) string {
	var fault *faceverify.Fault
	if errors.As(err, &fault) && fault.Message != "" {
		return fault.Message
	}
	return err.Error()
}

func checkVerdict(v *faceverify.Verdict) error {
	switch {
	case v == nil:
		return errors.New("verifier returned no verdict")
	case math.IsNaN(v.Distance) || math.IsInf(v.Distance, 0):
		return fmt.Errorf("verifier returned non-finite distance %v", v.Distance)
	case math.IsNaN(v.Threshold) || math.IsInf(v.Threshold, 0):
		return fmt.Errorf("verifier returned non-finite threshold %v", v.Threshold)
	}
	return nil
}
