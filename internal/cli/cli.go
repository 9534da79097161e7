// Package cli implements the two-image comparison command.
package cli

import (
	"context"
	"io"

	"github.com/example/face-compare/internal/compare"
)

// Comparer is the part of compare.Invoker the command depends on.
type Comparer interface {
	Compare(ctx context.Context, pathA, pathB string) compare.Result
}

// Setup builds a Comparer and a cleanup func. It only runs once the arguments are known to be valid.
type Setup func(ctx context.Context) (Comparer, func(), error)

// Run executes the command and returns the process exit code.
// Exactly one JSON line is written to stdout whatever happens.
func Run(ctx context.Context, args []string, stdout io.Writer, setup Setup) int {
	if len(args) != 2 {
		_ = emit(stdout, compare.InvalidArguments())
		return 1
	}

	comparer, cleanup, err := setup(ctx)
	if err != nil {
		if err := emit(stdout, compare.Failure(compare.FaultMessage(err))); err != nil {
			return 1
		}
		return 0
	}
	defer cleanup()

	if err := emit(stdout, comparer.Compare(ctx, args[0], args[1])); err != nil {
		return 1
	}
	return 0
}

func emit(w io.Writer, res compare.Result) error {
	line, err := res.Encode()
	if err != nil {
		line, _ = compare.Failure(err.Error()).Encode()
	}
	_, err = w.Write(line)
	return err
}
