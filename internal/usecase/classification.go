package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ai-image-tools/internal/config"
	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/logging"
	"github.com/example/ai-image-tools/internal/prediction"
)

// ErrUnknownFeature is returned for feature ids that are not registered.
var ErrUnknownFeature = errors.New("unknown feature")

// Classifier is the remote call used by every feature.
type Classifier interface {
	Classify(ctx context.Context, payload []byte, endpoint inference.Endpoint) (prediction.Result, error)
}

// Report is what a UI layer renders for one upload.
type Report struct {
	RequestID   string                 `json:"request_id"`
	Feature     string                 `json:"feature"`
	Title       string                 `json:"title"`
	Predictions prediction.Result      `json:"predictions"`
	Top         *prediction.Prediction `json:"top,omitempty"`
	Verdict     *bool                  `json:"verdict,omitempty"`
	Message     string                 `json:"message"`
	Error       *ReportError           `json:"error,omitempty"`
}

// ReportError is the user-facing form of a failed classification. Status and
// Body carry the remote diagnostics when there are any.
type ReportError struct {
	Kind       inference.Kind `json:"kind"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	Body       string         `json:"body,omitempty"`
}

// ClassificationUseCase runs uploads through the registered features.
type ClassificationUseCase struct {
	classifier Classifier
	features   map[string]Feature
	order      []string
	metrics    *Metrics
	logger     *zap.Logger
}

// NewClassificationUseCase constructs a use case over the given features.
// Later features with a duplicate id replace earlier ones.
func NewClassificationUseCase(classifier Classifier, features []Feature, metrics *Metrics, logger *zap.Logger) *ClassificationUseCase {
	uc := &ClassificationUseCase{
		classifier: classifier,
		features:   make(map[string]Feature, len(features)),
		metrics:    metrics,
		logger:     logger.Named("classification_usecase"),
	}
	for _, f := range features {
		if _, exists := uc.features[f.ID]; !exists {
			uc.order = append(uc.order, f.ID)
		}
		uc.features[f.ID] = f
	}
	return uc
}

// Features lists the registered features in registration order.
func (uc *ClassificationUseCase) Features() []Feature {
	out := make([]Feature, 0, len(uc.order))
	for _, id := range uc.order {
		out = append(out, uc.features[id])
	}
	return out
}

// Feature looks up a feature by id.
func (uc *ClassificationUseCase) Feature(id string) (Feature, bool) {
	f, ok := uc.features[id]
	return f, ok
}

// Classify encodes raw for the feature, sends it, and reduces the result.
// When the feature exists the report is always returned, carrying a user
// message on failure as well; the error is non-nil when the flow failed.
func (uc *ClassificationUseCase) Classify(ctx context.Context, featureID string, raw []byte) (*Report, error) {
	feature, ok := uc.features[featureID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", feature.ID, requestID)
	report := &Report{
		RequestID:   requestID,
		Feature:     feature.ID,
		Title:       feature.Title,
		Predictions: prediction.Result{},
	}

	started := time.Now()
	result, operation, err := uc.run(ctx, feature, raw)
	uc.metrics.observeRequest(feature.ID, inference.KindOf(err), time.Since(started))
	if err != nil {
		wrapped := logging.NewOperationError(operation, feature.ID, requestID, err)
		opLogger.Error("classification failed", zap.Error(wrapped), zap.String("kind", string(inference.KindOf(err))))
		report.Message = feature.FailureMessage
		report.Error = reportError(err)
		return report, wrapped
	}

	outcome := feature.Reducer.Reduce(result)
	report.Predictions = result
	report.Top = outcome.Top
	report.Verdict = outcome.Verdict
	report.Message = feature.message(outcome)
	uc.metrics.observeOutcome(feature, outcome)

	opLogger.Info("classification completed",
		zap.Int("entries", len(result)),
		zap.Duration("latency", time.Since(started)),
	)
	return report, nil
}

func (uc *ClassificationUseCase) run(ctx context.Context, feature Feature, raw []byte) (prediction.Result, string, error) {
	payload, err := feature.Encoder.Encode(raw)
	if err != nil {
		return nil, "usecase.encode_image", err
	}
	result, err := uc.classifier.Classify(ctx, payload, feature.Endpoint)
	if err != nil {
		return nil, "usecase.remote_classify", err
	}
	return result, "", nil
}

// MissingTokenMessage is shown when no API token is configured.
const MissingTokenMessage = "Hugging Face API token not found! Please set " + config.TokenEnv + " in your .env file."

func reportError(err error) *ReportError {
	kind := inference.KindOf(err)
	status, body := inference.Diagnostics(err)
	out := &ReportError{Kind: kind, StatusCode: status, Body: body}

	switch kind {
	case inference.KindConfig:
		var cfgErr *inference.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Field == "token" {
			out.Message = MissingTokenMessage
		} else {
			out.Message = "Classifier endpoint is not configured: " + err.Error()
		}
	case inference.KindEncoding:
		out.Message = "The uploaded file could not be read as an image."
	case inference.KindTransport:
		out.Message = "Error contacting Hugging Face: " + err.Error()
	case inference.KindRemote:
		out.Message = fmt.Sprintf("HTTP error occurred: status %d", status)
	case inference.KindUnexpectedContent:
		out.Message = "API did not return JSON. Raw response:"
	case inference.KindMalformedResponse:
		out.Message = "Response is not valid JSON:"
	default:
		out.Message = "Request failed: " + err.Error()
	}
	return out
}
