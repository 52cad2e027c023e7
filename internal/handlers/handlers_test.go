package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/prediction"
	"github.com/example/ai-image-tools/internal/usecase"
)

type stubClassifier struct {
	result prediction.Result
	err    error
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, payload []byte, endpoint inference.Endpoint) (prediction.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestRouter(t *testing.T, classifier usecase.Classifier) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	features := usecase.DefaultFeatures(
		inference.NewEndpoint("https://age.test", "token"),
		inference.NewEndpoint("https://detector.test", "token"),
		0,
	)
	uc := usecase.NewClassificationUseCase(classifier, features, usecase.NewMetrics(reg), zap.NewNop())

	router := gin.New()
	RegisterRoutes(router, uc, Options{
		MaxUploadSize: MaxUploadSize,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return router, reg
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func postImage(router *gin.Engine, t *testing.T, feature, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, formType := buildMultipartBody(t, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, "/classify/"+feature, body)
	req.Header.Set("Content-Type", formType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeReport(t *testing.T, resp *httptest.ResponseRecorder) usecase.Report {
	t.Helper()
	var report usecase.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid report JSON: %v (%s)", err, resp.Body.String())
	}
	return report
}

func TestClassifyRejectsLargeUpload(t *testing.T) {
	stub := &stubClassifier{}
	router, _ := newTestRouter(t, stub)

	resp := postImage(router, t, usecase.FeatureAge, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
	if stub.calls != 0 {
		t.Fatalf("expected no remote call, got %d", stub.calls)
	}
}

func TestClassifyRejectsUnsupportedContentType(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{})

	resp := postImage(router, t, usecase.FeatureAge, "text/plain", []byte("hello"))
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}

	resp = postImage(router, t, usecase.FeatureAge, "image/png", []byte("hello"))
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected sniffed type to be checked, got %d", resp.Code)
	}
}

func TestClassifyUnknownFeature(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{})

	resp := postImage(router, t, "gender", "image/png", pngBytes(t))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestClassifyRequiresImage(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{})

	req := httptest.NewRequest(http.MethodPost, "/classify/age", strings.NewReader(""))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestClassifyReturnsReport(t *testing.T) {
	stub := &stubClassifier{result: prediction.Result{{Label: "artificial", Score: 0.25}, {Label: "human", Score: 0.75}}}
	router, _ := newTestRouter(t, stub)

	resp := postImage(router, t, usecase.FeatureIsArtificial, "image/png", pngBytes(t))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	report := decodeReport(t, resp)
	if report.Verdict == nil || !*report.Verdict {
		t.Fatalf("expected positive verdict, got %+v", report)
	}
	if report.Top == nil || report.Top.Label != "human" {
		t.Fatalf("expected human top entry, got %+v", report.Top)
	}
	if len(report.Predictions) != 2 || report.RequestID == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestClassifyMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   inference.Kind
	}{
		{"missing token", &inference.ConfigError{Field: "token", Message: "unset"}, http.StatusServiceUnavailable, inference.KindConfig},
		{"remote 500", &inference.RemoteError{StatusCode: 500, Body: "boom"}, http.StatusBadGateway, inference.KindRemote},
		{"html", &inference.UnexpectedContentError{ContentType: "text/html", Body: "<html></html>"}, http.StatusBadGateway, inference.KindUnexpectedContent},
		{"transport", &inference.TransportError{URL: "https://detector.test", Err: context.DeadlineExceeded}, http.StatusBadGateway, inference.KindTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &stubClassifier{err: tc.err})
			resp := postImage(router, t, usecase.FeatureAIDetector, "image/png", pngBytes(t))
			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
			report := decodeReport(t, resp)
			if report.Error == nil || report.Error.Kind != tc.kind {
				t.Fatalf("unexpected report error: %+v", report.Error)
			}
			if report.Message == "" || report.Error.Message == "" {
				t.Fatalf("expected user-facing messages, got %+v", report)
			}
		})
	}
}

func TestClassifyRemoteDiagnosticsInBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{err: &inference.RemoteError{StatusCode: 500, Body: "upstream body"}})

	resp := postImage(router, t, usecase.FeatureAIDetector, "image/png", pngBytes(t))
	report := decodeReport(t, resp)
	if report.Error.StatusCode != 500 || report.Error.Body != "upstream body" {
		t.Fatalf("expected diagnostics, got %+v", report.Error)
	}
}

func TestClassifyCorruptImageForAge(t *testing.T) {
	stub := &stubClassifier{}
	router, _ := newTestRouter(t, stub)

	corrupt := append(pngBytes(t)[:16:16], 0x00, 0x01)
	resp := postImage(router, t, usecase.FeatureAge, "image/png", corrupt)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, resp.Code)
	}
	if stub.calls != 0 {
		t.Fatal("expected no remote call for a corrupt upload")
	}
}

func TestFeaturesAndHealth(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/features", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body struct {
		Features []featureInfo `json:"features"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Features) != 3 || body.Features[0].ID != usecase.FeatureAge {
		t.Fatalf("unexpected features: %+v", body.Features)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "ok") {
		t.Fatalf("unexpected health response: %d %s", resp.Code, resp.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubClassifier{result: prediction.Result{{Label: "human", Score: 0.9}}})
	postImage(router, t, usecase.FeatureAIDetector, "image/png", pngBytes(t))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `ai_image_tools_classify_requests_total{feature="ai-detector",outcome="success"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", resp.Body.String())
	}
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}
