// Command face-compare compares the faces in two images and prints a JSON verdict:
//
//	face-compare <image_path_1> <image_path_2>
package main

import (
	"context"
	"os"

	"github.com/example/face-compare/internal/cli"
	"github.com/example/face-compare/internal/compare"
	"github.com/example/face-compare/internal/config"
	"github.com/example/face-compare/internal/logging"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, setup))
}

func setup(ctx context.Context) (cli.Comparer, func(), error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}

	verifier, closeVerifier, err := cli.NewVerifier(ctx, cfg.Verifier, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		closeVerifier()
		_ = logger.Sync()
	}
	return compare.NewInvoker(verifier, logger), cleanup, nil
}
