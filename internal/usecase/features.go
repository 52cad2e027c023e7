package usecase

import (
	"fmt"

	"github.com/example/ai-image-tools/internal/imageencoder"
	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/prediction"
)

// Feature identifiers exposed to the UI layers.
const (
	FeatureAge          = "age"
	FeatureAIDetector   = "ai-detector"
	FeatureIsArtificial = "is-artificial"
)

// Feature is one classify-and-render flow: how the upload is encoded, where it
// is sent, and how the result table is reduced to a message.
type Feature struct {
	ID       string
	Title    string
	Endpoint inference.Endpoint
	Encoder  imageencoder.Encoder
	Reducer  prediction.Reducer

	// Describe renders a non-empty outcome for the user.
	Describe func(outcome prediction.Outcome) string
	// EmptyMessage is shown when the service returns no entries.
	EmptyMessage string
	// FailureMessage is shown alongside any error.
	FailureMessage string
	// Labels is the label set the model is known to return. Metrics report
	// any other label as OtherLabel.
	Labels []string
}

// OtherLabel stands in for labels outside a feature's known set in metrics.
const OtherLabel = "other"

var (
	ageLabels      = []string{"0-2", "3-9", "10-19", "20-29", "30-39", "40-49", "50-59", "60-69", "more than 70"}
	detectorLabels = []string{prediction.ArtificialLabel, "human"}
)

const (
	msgTryAgain        = "An error occurred while processing the image. Please try again."
	msgNoResults       = "No results to display."
	msgInvalidResponse = "Failed to get a valid response from the API."
)

// DefaultFeatures returns the three built-in features. The age classifier
// needs a re-encoded RGB JPEG; the detector accepts the upload as-is.
func DefaultFeatures(age, detector inference.Endpoint, maxDimension uint) []Feature {
	return []Feature{
		{
			ID:       FeatureAge,
			Title:    "Age Classification",
			Endpoint: age,
			Encoder:  imageencoder.NewJPEG(maxDimension),
			Reducer:  prediction.Argmax{},
			Describe: func(o prediction.Outcome) string {
				return fmt.Sprintf("The person in the image is likely in the age group: %s (score: %.2f)", o.Top.Label, o.Top.Score)
			},
			EmptyMessage:   msgTryAgain,
			FailureMessage: msgTryAgain,
			Labels:         ageLabels,
		},
		{
			ID:       FeatureAIDetector,
			Title:    "AI Image Detector",
			Endpoint: detector,
			Encoder:  imageencoder.Passthrough{},
			Reducer:  prediction.Argmax{},
			Describe: func(o prediction.Outcome) string {
				return fmt.Sprintf("The image is likely %s with a score of %.2f.", o.Top.Label, o.Top.Score)
			},
			EmptyMessage:   msgNoResults,
			FailureMessage: msgInvalidResponse,
			Labels:         detectorLabels,
		},
		{
			ID:       FeatureIsArtificial,
			Title:    "Is Image Artificial?",
			Endpoint: detector,
			Encoder:  imageencoder.Passthrough{},
			Reducer:  prediction.ArtificialRule,
			Describe: func(o prediction.Outcome) string {
				if *o.Verdict {
					return "The image may be artificially generated."
				}
				return "The image is likely human."
			},
			EmptyMessage:   msgInvalidResponse,
			FailureMessage: msgInvalidResponse,
			Labels:         detectorLabels,
		},
	}
}

func (f Feature) message(outcome prediction.Outcome) string {
	if outcome.Top == nil && outcome.Verdict == nil {
		return f.EmptyMessage
	}
	if f.Describe == nil {
		return ""
	}
	return f.Describe(outcome)
}

func (f Feature) metricLabel(label string) string {
	for _, known := range f.Labels {
		if known == label {
			return label
		}
	}
	return OtherLabel
}
