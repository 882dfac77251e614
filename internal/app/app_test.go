package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/config"
	"github.com/tuanvc/snaptext/internal/engine"
	"github.com/tuanvc/snaptext/internal/imaging"
	"github.com/tuanvc/snaptext/internal/record"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{
			name:    "create app with version",
			version: "1.0.0",
		},
		{
			name:    "create app with dev version",
			version: "dev",
		},
		{
			name:    "create app with empty version",
			version: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := New(nil, nil, nil, tt.version)
			if app == nil {
				t.Fatal("expected app to be created, got nil")
			}
			if app.Version != tt.version {
				t.Errorf("expected version %q, got %q", tt.version, app.Version)
			}
		})
	}
}

func TestSetEngine(t *testing.T) {
	app := New(nil, nil, nil, "test")

	eng := &engine.Mock{}
	app.SetEngine(eng)
	if app.Engine != eng {
		t.Error("expected engine override to be recorded")
	}
}

type discardPreview struct{}

func (discardPreview) Path() string   { return "" }
func (discardPreview) Release() error { return nil }

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := &config.Config{}
	cfg.OCR.Language = "eng"
	cfg.OCR.PageSegMode = 3
	cfg.OCR.RetryCount = 2
	cfg.OCR.AttemptTimeout = 5

	factory := func(id string, u imaging.Upload) (imaging.Handle, error) {
		return discardPreview{}, nil
	}
	store := record.NewStore(factory, zap.NewNop())
	t.Cleanup(store.Teardown)

	app := New(cfg, store, zap.NewNop(), "test")
	app.SetEngine(&engine.Mock{TextResult: "recognized text"})
	return app
}

func TestBuildPipeline(t *testing.T) {
	app := newTestApp(t)

	pipe, err := app.buildPipeline()
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if pipe.engine.Name() != "mock" {
		t.Errorf("expected mock engine, got %q", pipe.engine.Name())
	}
	if got := pipe.settings.Current().Language; got != "eng" {
		t.Errorf("expected language eng, got %q", got)
	}
	if pipe.enhancer.Enabled() {
		t.Error("expected enhancement to be disabled by default")
	}
}

func TestBuildPipelineRejectsUnknownLanguage(t *testing.T) {
	app := newTestApp(t)
	app.Config.OCR.Language = "klingon"

	if _, err := app.buildPipeline(); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestRunBatchWritesTextFiles(t *testing.T) {
	app := newTestApp(t)

	srcDir := t.TempDir()
	img := filepath.Join(srcDir, "menu.png")
	if err := os.WriteFile(img, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	if err := app.RunBatch([]string{img}, outDir, false); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(outDir, "menu.txt"))
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if string(out) != "recognized text" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunBatchRejectsUnreadableInput(t *testing.T) {
	app := newTestApp(t)

	err := app.RunBatch([]string{filepath.Join(t.TempDir(), "missing.png")}, "", false)
	if err == nil || !strings.Contains(err.Error(), "no images admitted") {
		t.Fatalf("expected admission failure, got %v", err)
	}
}
