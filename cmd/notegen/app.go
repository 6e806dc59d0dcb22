package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/csheth/notegen/internal/config"
	"github.com/csheth/notegen/internal/notesapi"
	"github.com/csheth/notegen/internal/pipeline"
	"github.com/csheth/notegen/internal/preview"
	"github.com/csheth/notegen/internal/progress"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	renderer *preview.Renderer
}

func newApp(cfg *config.Config) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	renderer := preview.NewRenderer(preview.Options{
		Engine:    preview.ChromeEngine{ExecPath: cfg.ChromePath},
		Printer:   preview.SpoolPrinter{Command: cfg.PrintCommand},
		ExportDir: cfg.ExportDir,
	})
	return &app{cfg: cfg, registry: registry, renderer: renderer}
}

// newPipeline builds a pipeline against the configured note service. The
// observer runs with the pipeline lock held and must not block.
func (a *app) newPipeline(observer func(pipeline.Snapshot)) (*pipeline.Pipeline, error) {
	client, err := notesapi.NewFromEnv(notesapi.Config{
		BaseURL:    a.cfg.APIURL,
		HTTPClient: &http.Client{Timeout: a.cfg.RequestTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pass --api-url or set NOTEGEN_API_URL", err)
	}
	return pipeline.New(pipeline.Config{
		Client:   client,
		Script:   progress.DefaultScript.WithDuration(a.cfg.ProgressDuration),
		Metrics:  pipeline.NewMetrics(a.registry),
		Observer: observer,
	}), nil
}
