package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-compare/internal/auth"
	"github.com/example/face-compare/internal/faceverify"
	"github.com/example/face-compare/internal/usecase"
)

// DefaultMaxUploadSize bounds each uploaded image when Options leaves it unset.
const DefaultMaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and headers around two files.
const multipartOverhead = 1 << 20

// ComparisonService is the subset of *usecase.ComparisonUseCase the handlers need.
type ComparisonService interface {
	Compare(ctx context.Context, userID string, imageA, imageB []byte) (*usecase.Comparison, error)
	GetResult(ctx context.Context, requestID string) (*usecase.Comparison, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options configures upload validation.
type Options struct {
	MaxUploadSize     int64
	AllowedExtensions []string
	Logger            *zap.Logger
}

type handler struct {
	svc        ComparisonService
	maxSize    int64
	extensions []string
	logger     *zap.Logger
}

type base64Request struct {
	Image1 string `json:"image1"`
	Image2 string `json:"image2"`
}

// uploadError carries the status a rejected upload maps to.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

// RegisterRoutes wires the HTTP handlers to the Gin router. middlewares guard every route except health.
func RegisterRoutes(router *gin.Engine, svc ComparisonService, opts Options, middlewares ...gin.HandlerFunc) {
	h := &handler{
		svc:        svc,
		maxSize:    opts.MaxUploadSize,
		extensions: opts.AllowedExtensions,
		logger:     opts.Logger,
	}
	if h.maxSize <= 0 {
		h.maxSize = DefaultMaxUploadSize
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("handlers")

	api := router.Group("/api")
	api.GET("/health", h.health)

	protected := api.Group("", middlewares...)
	protected.POST("/compare-faces", h.compareMultipart)
	protected.POST("/compare-faces-base64", h.compareBase64)
	protected.GET("/results/:id", h.getResult)
	protected.GET("/metrics", h.metrics)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) compareMultipart(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxSize+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, "multipart form required")
		return
	}

	file1, err1 := c.FormFile("image1")
	file2, err2 := c.FormFile("image2")
	if err1 != nil || err2 != nil {
		fail(c, http.StatusBadRequest, "two images are required")
		return
	}

	imageA, err := h.readUpload(file1)
	if err != nil {
		failUpload(c, err)
		return
	}
	imageB, err := h.readUpload(file2)
	if err != nil {
		failUpload(c, err)
		return
	}

	h.compare(c, imageA, imageB)
}

func (h *handler) compareBase64(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 3*h.maxSize+multipartOverhead)

	var req base64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Image1) == "" || strings.TrimSpace(req.Image2) == "" {
		fail(c, http.StatusBadRequest, "two images are required")
		return
	}

	imageA, err := h.decodeInline("image1", req.Image1)
	if err != nil {
		failUpload(c, err)
		return
	}
	imageB, err := h.decodeInline("image2", req.Image2)
	if err != nil {
		failUpload(c, err)
		return
	}

	h.compare(c, imageA, imageB)
}

func (h *handler) compare(c *gin.Context, imageA, imageB []byte) {
	userID, _ := auth.GetUserID(c.Request.Context())

	comparison, err := h.svc.Compare(c.Request.Context(), userID, imageA, imageB)
	if err != nil {
		h.logger.Error("comparison failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to process comparison")
		return
	}

	c.JSON(http.StatusOK, comparisonBody(comparison))
}

func (h *handler) getResult(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		fail(c, http.StatusBadRequest, "id is required")
		return
	}

	comparison, err := h.svc.GetResult(c.Request.Context(), requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		h.logger.Error("result lookup failed", zap.String("request_id", requestID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load result")
		return
	}

	body := comparisonBody(comparison)
	body["user_id"] = comparison.UserID
	body["created_at"] = comparison.CreatedAt
	c.JSON(http.StatusOK, body)
}

func (h *handler) metrics(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics aggregation failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": summary})
}

func (h *handler) readUpload(file *multipart.FileHeader) ([]byte, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	if !slices.Contains(h.extensions, ext) {
		return nil, &uploadError{
			status:  http.StatusUnsupportedMediaType,
			message: fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(h.extensions, ", ")),
		}
	}
	if file.Size > h.maxSize {
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: fmt.Sprintf("%s exceeds %d bytes", file.Filename, h.maxSize)}
	}

	src, err := file.Open()
	if err != nil {
		return nil, &uploadError{status: http.StatusBadRequest, message: "unable to open image"}
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &uploadError{status: http.StatusInternalServerError, message: "failed to read image"}
	}
	if len(data) == 0 {
		return nil, &uploadError{status: http.StatusBadRequest, message: file.Filename + " is empty"}
	}
	return data, nil
}

func (h *handler) decodeInline(field, raw string) ([]byte, error) {
	data, err := faceverify.DecodeInline(raw)
	if err != nil || len(data) == 0 {
		return nil, &uploadError{status: http.StatusBadRequest, message: field + " is not valid base64"}
	}
	if int64(len(data)) > h.maxSize {
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: fmt.Sprintf("%s exceeds %d bytes", field, h.maxSize)}
	}
	return data, nil
}

func comparisonBody(comparison *usecase.Comparison) gin.H {
	result := comparison.Result
	body := gin.H{
		"success":    !result.Failed(),
		"request_id": comparison.RequestID,
		"match":      result.Match,
		"confidence": result.Confidence,
		"distance":   result.Distance,
		"cached":     comparison.Cached,
	}
	if result.Failed() {
		body["error"] = result.Err
	} else {
		body["threshold"] = result.Threshold
	}
	return body
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func failUpload(c *gin.Context, err error) {
	var upErr *uploadError
	if errors.As(err, &upErr) {
		fail(c, upErr.status, upErr.message)
		return
	}
	fail(c, http.StatusBadRequest, err.Error())
}
