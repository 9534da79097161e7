package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/face-compare/internal/compare"
	"github.com/example/face-compare/internal/config"
	"github.com/example/face-compare/internal/faceverify"
)

type stubComparer struct {
	result compare.Result
	paths  []string
}

func (s *stubComparer) Compare(ctx context.Context, pathA, pathB string) compare.Result {
	s.paths = []string{pathA, pathB}
	return s.result
}

func setupWith(c Comparer, cleaned *bool) Setup {
	return func(ctx context.Context) (Comparer, func(), error) {
		return c, func() {
			if cleaned != nil {
				*cleaned = true
			}
		}, nil
	}
}

func TestRunRejectsWrongArgumentCount(t *testing.T) {
	for _, args := range [][]string{nil, {"a.jpg"}, {"a.jpg", "b.jpg", "c.jpg"}} {
		setupCalled := false
		setup := func(ctx context.Context) (Comparer, func(), error) {
			setupCalled = true
			return nil, nil, errors.New("unreachable")
		}

		var out bytes.Buffer
		code := Run(context.Background(), args, &out, setup)

		assert.Equal(t, 1, code, "args=%v", args)
		assert.Equal(t, `{"match": false, "confidence": 0.0, "distance": 1.0, "error": "Invalid arguments"}`+"\n", out.String())
		assert.False(t, setupCalled)
	}
}

func TestRunPrintsSuccess(t *testing.T) {
	stub := &stubComparer{result: compare.Success(true, 0.25, 0.68)}
	cleaned := false

	var out bytes.Buffer
	code := Run(context.Background(), []string{"a.jpg", "b.jpg"}, &out, setupWith(stub, &cleaned))

	assert.Equal(t, 0, code)
	assert.Equal(t, `{"match": true, "confidence": 0.75, "distance": 0.25, "threshold": 0.68}`+"\n", out.String())
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, stub.paths)
	assert.True(t, cleaned)
}

func TestRunComparisonFaultExitsZero(t *testing.T) {
	stub := &stubComparer{result: compare.Failure("Face could not be detected")}

	var out bytes.Buffer
	code := Run(context.Background(), []string{"a.jpg", "b.jpg"}, &out, setupWith(stub, nil))

	assert.Equal(t, 0, code)
	assert.Equal(t, `{"match": false, "confidence": 0.0, "distance": 1.0, "error": "Face could not be detected"}`+"\n", out.String())
}

func TestRunSetupFaultIsReportedInBand(t *testing.T) {
	setup := func(ctx context.Context) (Comparer, func(), error) {
		return nil, nil, errors.New("invalid configuration: FACE_VERIFIER_BACKEND must be http or grpc")
	}

	var out bytes.Buffer
	code := Run(context.Background(), []string{"a.jpg", "b.jpg"}, &out, setup)

	assert.Equal(t, 0, code)
	var res compare.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Failed())
	assert.Contains(t, res.Err, "FACE_VERIFIER_BACKEND")
}

func TestRunOutputIsSingleLine(t *testing.T) {
	stub := &stubComparer{result: compare.Failure("line one\nline two")}

	var out bytes.Buffer
	Run(context.Background(), []string{"a.jpg", "b.jpg"}, &out, setupWith(stub, nil))

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestRunEndToEndAgainstHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verified":false,"distance":1.5,"threshold":0.68}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.jpg")
	pathB := filepath.Join(dir, "b.jpg")
	require.NoError(t, os.WriteFile(pathA, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(pathB, []byte("b"), 0o600))

	setup := func(ctx context.Context) (Comparer, func(), error) {
		verifier, cleanup, err := NewVerifier(ctx, config.Verifier{Backend: config.BackendHTTP, Addr: srv.URL}, zap.NewNop())
		if err != nil {
			return nil, nil, err
		}
		return compare.NewInvoker(verifier, zap.NewNop()), cleanup, nil
	}

	var out bytes.Buffer
	code := Run(context.Background(), []string{pathA, pathB}, &out, setup)

	assert.Equal(t, 0, code)
	assert.Equal(t, `{"match": false, "confidence": -0.5, "distance": 1.5, "threshold": 0.68}`+"\n", out.String())
}

func TestNewVerifierBackends(t *testing.T) {
	v, cleanup, err := NewVerifier(context.Background(), config.Verifier{Backend: config.BackendGRPC, Addr: "localhost:1"}, zap.NewNop())
	require.NoError(t, err)
	assert.Implements(t, (*faceverify.Verifier)(nil), v)
	cleanup()

	_, _, err = NewVerifier(context.Background(), config.Verifier{Backend: "smoke-signals"}, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrInvalid)
}
