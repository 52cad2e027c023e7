package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-image-tools/internal/imageencoder"
	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/usecase"
)

// MaxUploadSize is the default limit for uploaded images.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of the
// image itself.
const multipartOverhead = 1 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Classifier is the subset of the use case the handlers need.
type Classifier interface {
	Features() []usecase.Feature
	Classify(ctx context.Context, featureID string, raw []byte) (*usecase.Report, error)
}

// Options tune route registration.
type Options struct {
	// MaxUploadSize bounds the image part; zero means MaxUploadSize.
	MaxUploadSize int64
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
}

type featureInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc Classifier, opts Options) {
	maxUpload := opts.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/features", func(c *gin.Context) {
		features := uc.Features()
		out := make([]featureInfo, 0, len(features))
		for _, f := range features {
			out = append(out, featureInfo{ID: f.ID, Title: f.Title})
		}
		c.JSON(http.StatusOK, gin.H{"features": out})
	})

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	router.POST("/classify/:feature", func(c *gin.Context) {
		featureID := c.Param("feature")
		if !hasFeature(uc, featureID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown feature: " + featureID})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		if !isAllowedImage(file.Header.Get("Content-Type"), data) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "supported image types: jpeg, png, gif"})
			return
		}

		report, err := uc.Classify(c.Request.Context(), featureID, data)
		if err != nil {
			if report == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(statusForKind(inference.KindOf(err)), report)
			return
		}

		c.JSON(http.StatusOK, report)
	})
}

func hasFeature(uc Classifier, id string) bool {
	for _, f := range uc.Features() {
		if f.ID == id {
			return true
		}
	}
	return false
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// isAllowedImage checks the sniffed bytes and, when the client declared a
// specific type, the declared type too.
func isAllowedImage(declared string, data []byte) bool {
	declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if declared != "" && declared != "application/octet-stream" && !allowedImageTypes[declared] {
		return false
	}
	return allowedImageTypes[imageencoder.ContentType(data)]
}

func statusForKind(kind inference.Kind) int {
	switch kind {
	case inference.KindEncoding:
		return http.StatusUnprocessableEntity
	case inference.KindConfig:
		return http.StatusServiceUnavailable
	case inference.KindTransport, inference.KindRemote, inference.KindUnexpectedContent, inference.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
