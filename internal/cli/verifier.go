package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-compare/internal/config"
	"github.com/example/face-compare/internal/faceverify"
	"github.com/example/face-compare/internal/faceverify/deepfaceapi"
	"github.com/example/face-compare/internal/grpcclient"
)

// NewVerifier picks the verifier adapter named by cfg.Backend. The returned func releases it.
func NewVerifier(ctx context.Context, cfg config.Verifier, logger *zap.Logger) (faceverify.Verifier, func(), error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		return deepfaceapi.NewClient(cfg.Addr, cfg.Timeout, logger), func() {}, nil
	case config.BackendGRPC:
		verifier, conn, err := grpcclient.DialVerifier(ctx, cfg.Addr, cfg.Timeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return verifier, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown verifier backend %q", config.ErrInvalid, cfg.Backend)
	}
}
