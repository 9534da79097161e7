package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-compare/internal/faceverify"
	"github.com/example/face-compare/internal/logging"
)

// VerifyMethod is the unary method served by the face-verification sidecar.
// Request and response are google.protobuf.Struct messages using the DeepFace field names.
const VerifyMethod = "/faceverify.v1.FaceVerifier/Verify"

// DialVerifier returns a gRPC-backed verifier. The connection is established lazily so a
// missing service surfaces as a verification failure rather than a startup failure.
func DialVerifier(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (faceverify.Verifier, *grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_verifier", "", err)
		logger.Error("failed to dial face verifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcVerifier{conn: conn, timeout: timeout, logger: logger.Named("grpcclient")}, conn, nil
}

type grpcVerifier struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func (g *grpcVerifier) Verify(ctx context.Context, req faceverify.Request) (*faceverify.Verdict, error) {
	const op = "grpcclient.verify"

	imgA, err := req.ImageA.Load()
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}
	imgB, err := req.ImageB.Load()
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}

	in, err := structpb.NewStruct(map[string]interface{}{
		"img1":            faceverify.DataURI(imgA),
		"img2":            faceverify.DataURI(imgB),
		"model_name":      req.Model,
		"distance_metric": req.Metric,
	})
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, VerifyMethod, in, out); err != nil {
		g.logger.Error("verify call failed", zap.Error(err))
		if st, ok := status.FromError(err); ok && st.Message() != "" {
			return nil, &faceverify.Fault{Message: st.Message()}
		}
		return nil, logging.NewOperationError(op, "", err)
	}

	return decodeVerdict(out)
}

func decodeVerdict(out *structpb.Struct) (*faceverify.Verdict, error) {
	const op = "grpcclient.decode_verdict"
	fields := out.GetFields()

	if msg := fields["error"].GetStringValue(); msg != "" {
		return nil, &faceverify.Fault{Message: msg}
	}

	verified, ok := fields["verified"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, logging.NewOperationError(op, "", errors.New("verified is missing or not a bool"))
	}
	distance, err := numberField(fields, "distance")
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}
	threshold, err := numberField(fields, "threshold")
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}

	return &faceverify.Verdict{
		Verified:  verified.BoolValue,
		Distance:  distance,
		Threshold: threshold,
	}, nil
}

func numberField(fields map[string]*structpb.Value, name string) (float64, error) {
	v, ok := fields[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s is missing or not a number", name)
	}
	if math.IsNaN(v.NumberValue) {
		return 0, fmt.Errorf("%s is NaN", name)
	}
	return v.NumberValue, nil
}
