package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/ai-image-tools/internal/config"
	"github.com/example/ai-image-tools/internal/handlers"
	"github.com/example/ai-image-tools/internal/inference"
	"github.com/example/ai-image-tools/internal/logging"
	"github.com/example/ai-image-tools/internal/render"
	"github.com/example/ai-image-tools/internal/usecase"
)

// app holds everything built from the configuration at startup.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	uc       *usecase.ClassificationUseCase
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := inference.NewClient(logger, inference.WithTimeout(cfg.Timeout()))
	features := usecase.DefaultFeatures(
		inference.NewEndpoint(cfg.AgeEndpoint, cfg.Token),
		inference.NewEndpoint(cfg.DetectorEndpoint, cfg.Token),
		cfg.MaxDimension,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		uc:       usecase.NewClassificationUseCase(client, features, usecase.NewMetrics(registry), logger),
	}
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(a.logger))
	r.MaxMultipartMemory = a.cfg.MaxUploadBytes + (1 << 20)
	handlers.RegisterRoutes(r, a.uc, handlers.Options{
		MaxUploadSize: a.cfg.MaxUploadBytes,
		Metrics:       promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	})
	return r
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		current    *app
	)

	root := &cobra.Command{
		Use:           "ai-image-tools",
		Short:         "Classify images with hosted Hugging Face models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr, _ = cmd.Flags().GetString("addr")
			}
			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			current = newApp(cfg, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				_ = current.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("AI_TOOLS_CONFIG"), "Path to a .yaml, .toml or .json config file (defaults AI_TOOLS_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), current)
		},
	}
	serveCmd.Flags().String("addr", config.DefaultAddr, "HTTP listen address (defaults AI_TOOLS_ADDR or :8080)")

	var featureID string
	classifyCmd := &cobra.Command{
		Use:     "classify <image>",
		Short:   "Classify a single image file",
		Example: "  ai-image-tools classify --feature age face.jpg",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, current, featureID, args[0])
		},
	}
	classifyCmd.Flags().StringVarP(&featureID, "feature", "f", usecase.FeatureAIDetector,
		"Feature to run: "+strings.Join([]string{usecase.FeatureAge, usecase.FeatureAIDetector, usecase.FeatureIsArtificial}, "|"))

	root.AddCommand(serveCmd, classifyCmd)
	return root
}

func runServe(ctx context.Context, a *app) error {
	if a.cfg.Token == "" {
		a.logger.Warn("API token is not set; classification requests will fail", zap.String("env", config.TokenEnv))
	}
	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: a.router(),
	}

	a.logger.Info("AI image tools API listening", zap.String("addr", a.cfg.Addr))
	lc := &lifecycle{server: server, logger: a.logger, drain: shutdownTimeout}
	return lc.run(ctx)
}

func runClassify(cmd *cobra.Command, a *app, featureID, path string) error {
	if _, ok := a.uc.Feature(featureID); !ok {
		var ids []string
		for _, f := range a.uc.Features() {
			ids = append(ids, f.ID)
		}
		return fmt.Errorf("unknown feature %q (available: %s)", featureID, strings.Join(ids, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	report, classifyErr := a.uc.Classify(cmd.Context(), featureID, data)
	if report == nil {
		return classifyErr
	}
	if err := render.Text(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if classifyErr != nil {
		return errors.New("classification failed")
	}
	return nil
}
