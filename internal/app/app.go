// Package app wires the configuration, record store, recognition
// pipeline, and HTTP server into runnable entrypoints.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/api"
	"github.com/tuanvc/snaptext/internal/config"
	"github.com/tuanvc/snaptext/internal/engine"
	"github.com/tuanvc/snaptext/internal/enhance"
	"github.com/tuanvc/snaptext/internal/imaging"
	"github.com/tuanvc/snaptext/internal/metrics"
	"github.com/tuanvc/snaptext/internal/processor"
	"github.com/tuanvc/snaptext/internal/record"
	"github.com/tuanvc/snaptext/internal/settings"
)

type App struct {
	Config  *config.Config
	Store   *record.Store
	Logger  *zap.Logger
	Engine  engine.Engine
	Version string
}

func New(cfg *config.Config, st *record.Store, logger *zap.Logger, version string) *App {
	return &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
	}
}

// SetEngine overrides the recognition engine. The default is the
// tesseract engine built from config.
func (app *App) SetEngine(eng engine.Engine) {
	app.Engine = eng
}

// pipeline groups the subsystems both entrypoints need.
type pipeline struct {
	engine    engine.Engine
	settings  *settings.Store
	enhancer  *enhance.Enhancer
	processor *processor.Processor
	metrics   *metrics.Metrics
}

func (app *App) buildPipeline() (*pipeline, error) {
	eng := app.Engine
	if eng == nil {
		eng = engine.NewTesseract(app.Config.OCR.DataPath)
	}
	if !eng.Available() {
		app.Logger.Warn("Recognition engine unavailable, images will fail until it is installed",
			zap.String("engine", eng.Name()))
	}

	st, err := settings.New(app.Config.OCR.Language, app.Config.OCR.PageSegMode)
	if err != nil {
		return nil, err
	}

	m := metrics.Default()
	proc := processor.New(app.Store, eng, st, processor.Config{
		MaxRetries:     app.Config.OCR.RetryCount,
		RetryDelay:     time.Duration(app.Config.OCR.RetryDelay) * time.Second,
		AttemptTimeout: time.Duration(app.Config.OCR.AttemptTimeout) * time.Second,
	}, m, app.Logger)

	return &pipeline{
		engine:    eng,
		settings:  st,
		enhancer:  enhance.New(app.Config.Enhance, app.Logger),
		processor: proc,
		metrics:   m,
	}, nil
}

func (app *App) RunServer() {
	pipe, err := app.buildPipeline()
	if err != nil {
		app.Logger.Fatal("Failed to build recognition pipeline", zap.Error(err))
	}

	stopGauges := app.startGaugePump(pipe.metrics)

	server := api.New(app.Config, api.Deps{
		Store:     app.Store,
		Settings:  pipe.settings,
		Processor: pipe.processor,
		Enhancer:  pipe.enhancer,
		Engine:    pipe.engine,
		Metrics:   pipe.metrics,
	}, app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("engine", pipe.engine.Name()),
		zap.Bool("enhancement", pipe.enhancer.Enabled()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	stopGauges()
	app.Store.Teardown()
}

// RunBatch admits the given image files, recognizes them sequentially,
// and prints the extracted text to stdout, or writes one .txt file per
// image when outDir is set. enhanceText additionally runs completed text
// through the enhancement service.
func (app *App) RunBatch(paths []string, outDir string, enhanceText bool) error {
	pipe, err := app.buildPipeline()
	if err != nil {
		return err
	}

	admitted := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", path, err)
			continue
		}
		filename := filepath.Base(path)
		added, rejected, err := app.Store.Add(imaging.Upload{
			Data:        data,
			Filename:    filename,
			ContentType: imaging.DetectContentType(filename, data),
		})
		if err != nil {
			return err
		}
		for _, r := range rejected {
			fmt.Fprintf(os.Stderr, "skipped %s: %s\n", path, r.Reason)
		}
		admitted += len(added)
	}
	if admitted == 0 {
		return fmt.Errorf("no images admitted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		select {
		case <-quit:
			app.Logger.Warn("Interrupt received, stopping after current image")
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, runErr := pipe.processor.ProcessAll(ctx)

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	for _, rec := range app.Store.Snapshot() {
		switch rec.Status {
		case record.StatusCompleted:
			text := rec.Text
			if enhanceText && pipe.enhancer.Enabled() {
				text = pipe.enhancer.Enhance(ctx, text, enhance.Options{
					Language: pipe.settings.Current().Language,
				})
			}
			if outDir != "" {
				name := strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename)) + ".txt"
				if err := os.WriteFile(filepath.Join(outDir, name), []byte(text), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
				fmt.Printf("wrote %s\n", filepath.Join(outDir, name))
			} else {
				fmt.Printf("--- %s ---\n%s\n\n", rec.Filename, text)
			}
		case record.StatusError:
			fmt.Fprintf(os.Stderr, "failed %s: %s\n", rec.Filename, rec.Error)
		}
	}

	fmt.Println(summary.String())
	return runErr
}

// startGaugePump mirrors store counts into the records gauge so the
// metrics endpoint stays current without polling. The returned stop
// function cancels the subscription and waits for the pump to exit.
func (app *App) startGaugePump(m *metrics.Metrics) func() {
	events, cancel := app.Store.Subscribe()
	m.SetRecordCounts(app.Store.Counts())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			m.SetRecordCounts(ev.Counts)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
