package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearSnaptextEnv() {
	os.Unsetenv("SNAPTEXT_SERVER_ADDRESS")
	os.Unsetenv("SNAPTEXT_SERVER_PORT")
	os.Unsetenv("SNAPTEXT_OCR_LANGUAGE")
	os.Unsetenv("SNAPTEXT_OCR_PAGE_SEG_MODE")
	os.Unsetenv("SNAPTEXT_OCR_DATA_PATH")
	os.Unsetenv("SNAPTEXT_ENHANCE_API_KEY")
	os.Unsetenv("SNAPTEXT_ENHANCE_BASE_URL")
	os.Unsetenv("SNAPTEXT_ENHANCE_MODEL")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("OPENROUTER_API_KEY")
	os.Unsetenv("OPENAI_BASE_URL")
	os.Unsetenv("TESSDATA_PREFIX")
}

func TestLoadDefaults(t *testing.T) {
	clearSnaptextEnv()
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.OCR.Language != "eng" {
		t.Errorf("expected default language eng, got %s", cfg.OCR.Language)
	}
	if cfg.OCR.PageSegMode != 3 {
		t.Errorf("expected default page seg mode 3, got %d", cfg.OCR.PageSegMode)
	}
	if cfg.OCR.RetryCount != 2 {
		t.Errorf("expected default retry count 2, got %d", cfg.OCR.RetryCount)
	}
	if cfg.OCR.RetryDelay != 2 {
		t.Errorf("expected default retry delay 2s, got %d", cfg.OCR.RetryDelay)
	}
	if cfg.OCR.AttemptTimeout != 60 {
		t.Errorf("expected default attempt timeout 60s, got %d", cfg.OCR.AttemptTimeout)
	}
	if cfg.Enhance.Enabled {
		t.Error("enhancement should be disabled by default")
	}
	if cfg.Preview.Dir != filepath.Join(dataDir, "previews") {
		t.Errorf("unexpected preview dir: %s", cfg.Preview.Dir)
	}
	if cfg.Preview.MaxEdge != 512 {
		t.Errorf("expected default preview max edge 512, got %d", cfg.Preview.MaxEdge)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearSnaptextEnv()
	t.Setenv("SNAPTEXT_SERVER_PORT", "9999")
	t.Setenv("SNAPTEXT_OCR_LANGUAGE", "vie")

	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999 from env, got %d", cfg.Server.Port)
	}
	if cfg.OCR.Language != "vie" {
		t.Errorf("expected language vie from env, got %s", cfg.OCR.Language)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearSnaptextEnv()
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "snaptext.yaml")

	content := `server:
  port: 7070
ocr:
  language: deu
  page_seg_mode: 6
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath, dataDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070 from file, got %d", cfg.Server.Port)
	}
	if cfg.OCR.Language != "deu" {
		t.Errorf("expected language deu from file, got %s", cfg.OCR.Language)
	}
	if cfg.OCR.PageSegMode != 6 {
		t.Errorf("expected page seg mode 6 from file, got %d", cfg.OCR.PageSegMode)
	}
}

func TestLoadEnhanceKeyAlias(t *testing.T) {
	clearSnaptextEnv()
	t.Setenv("OPENAI_API_KEY", "sk-test-123")

	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Enhance.Enabled {
		t.Error("expected enhancement enabled when api key present")
	}
	if cfg.Enhance.APIKey != "sk-test-123" {
		t.Errorf("expected api key from OPENAI_API_KEY alias, got %s", cfg.Enhance.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearSnaptextEnv()
	t.Setenv("SNAPTEXT_OCR_PAGE_SEG_MODE", "99")

	if _, err := Load("", t.TempDir()); err == nil {
		t.Error("expected error for page seg mode out of range")
	}

	clearSnaptextEnv()
	t.Setenv("SNAPTEXT_SERVER_PORT", "0")

	if _, err := Load("", t.TempDir()); err == nil {
		t.Error("expected error for port 0")
	}
}
