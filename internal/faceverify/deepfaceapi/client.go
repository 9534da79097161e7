// Package deepfaceapi talks to the DeepFace REST API (`deepface api`) over HTTP.
package deepfaceapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/example/face-compare/internal/faceverify"
	"github.com/example/face-compare/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

type verifyRequest struct {
	Img1           string `json:"img1"`
	Img2           string `json:"img2"`
	ModelName      string `json:"model_name"`
	DistanceMetric string `json:"distance_metric"`
}

type verifyResponse struct {
	Verified  *bool    `json:"verified"`
	Distance  *float64 `json:"distance"`
	Threshold *float64 `json:"threshold"`
	Error     string   `json:"error"`
	Exception string   `json:"exception"`
}

// Client implements faceverify.Verifier against a DeepFace API base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var _ faceverify.Verifier = (*Client)(nil)

// NewClient returns a client for baseURL. A zero timeout leaves calls unbounded.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
		logger:  logger.Named("deepfaceapi"),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}

// Verify posts both images inline and decodes the verdict.
func (c *Client) Verify(ctx context.Context, req faceverify.Request) (*faceverify.Verdict, error) {
	const op = "deepfaceapi.verify"

	imgA, err := req.ImageA.Load()
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}
	imgB, err := req.ImageB.Load()
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}

	body, err := json.Marshal(verifyRequest{
		Img1:           faceverify.DataURI(imgA),
		Img2:           faceverify.DataURI(imgB),
		ModelName:      req.Model,
		DistanceMetric: req.Metric,
	})
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError(op, "", err)
		c.logger.Error("verify request failed", zap.Error(wrapped), zap.String("base_url", c.baseURL))
		return nil, wrapped
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, logging.NewOperationError(op, "", err)
	}
	c.logger.Debug("verify response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var decoded verifyResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil {
			if msg := firstNonEmpty(decoded.Error, decoded.Exception); msg != "" {
				return nil, &faceverify.Fault{Message: msg}
			}
		}
		return nil, logging.NewOperationError(op, "", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, logging.NewOperationError(op, "", fmt.Errorf("decode response: %w", decodeErr))
	}
	if msg := firstNonEmpty(decoded.Error, decoded.Exception); msg != "" {
		return nil, &faceverify.Fault{Message: msg}
	}
	if decoded.Verified == nil || decoded.Distance == nil || decoded.Threshold == nil {
		return nil, logging.NewOperationError(op, "", fmt.Errorf("response is missing verified, distance or threshold"))
	}

	return &faceverify.Verdict{
		Verified:  *decoded.Verified,
		Distance:  *decoded.Distance,
		Threshold: *decoded.Threshold,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
