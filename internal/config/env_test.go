package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "WORKER_CONCURRENCY", "QUEUE_STREAM", "JOB_TIMEOUT", "HTTP_ADDR", "ENVIRONMENT", "INPUT_ROOT", "OUTPUT_ROOT"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Logging.Level != "info" || cfg.Logging.Pretty {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.JobTimeout != 5*time.Minute {
		t.Errorf("Worker = %+v", cfg.Worker)
	}
	if cfg.Queue.Stream != "jobs:crop" || cfg.HTTP.Addr != ":8080" {
		t.Errorf("Queue = %+v, HTTP = %+v", cfg.Queue, cfg.HTTP)
	}
	if cfg.Axiom.Dataset != "dev_cropmargins" {
		t.Errorf("Axiom.Dataset = %q", cfg.Axiom.Dataset)
	}
	if cfg.Storage.InputRoot != "" {
		t.Errorf("InputRoot = %q, want empty", cfg.Storage.InputRoot)
	}
	if want := filepath.Join(cfg.Storage.WorkDir, "results"); cfg.Storage.OutputRoot != want {
		t.Errorf("OutputRoot = %q, want %q", cfg.Storage.OutputRoot, want)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("RETRY_BACKOFF_FACTOR", "1.5")
	t.Setenv("S3_USE_PATH_STYLE", "yes")
	t.Setenv("ENVIRONMENT", "local")
	t.Setenv("JOB_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("INPUT_ROOT", "/srv/pdfs")
	t.Setenv("OUTPUT_ROOT", "/srv/out")

	cfg := FromEnv()
	if cfg.Worker.Concurrency != 12 || cfg.Worker.JobTimeout != 90*time.Second {
		t.Errorf("Worker = %+v", cfg.Worker)
	}
	if cfg.Worker.RetryBackoffFactor != 1.5 {
		t.Errorf("RetryBackoffFactor = %v", cfg.Worker.RetryBackoffFactor)
	}
	if cfg.Worker.JobMaxAttempts != 3 {
		t.Errorf("bad int should fall back to default, got %d", cfg.Worker.JobMaxAttempts)
	}
	if !cfg.Storage.UsePathStyle || !cfg.Logging.Pretty {
		t.Errorf("bool parsing failed: %+v %+v", cfg.Storage, cfg.Logging)
	}
	if cfg.Storage.InputRoot != "/srv/pdfs" || cfg.Storage.OutputRoot != "/srv/out" {
		t.Errorf("roots = %q, %q", cfg.Storage.InputRoot, cfg.Storage.OutputRoot)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("QUEUE_GROUP=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUEUE_GROUP", "")
	os.Unsetenv("QUEUE_GROUP")

	cfg := Load(path)
	if cfg.Queue.Group != "from-file" {
		t.Errorf("Queue.Group = %q, want from-file", cfg.Queue.Group)
	}
}

func TestCropDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crop.toml")
	if err := os.WriteFile(path, []byte("percent_retain = 3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Crop: CropConfig{DefaultsFile: path}}
	s, err := cfg.CropDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if s.PercentRetain != 3 {
		t.Errorf("PercentRetain = %v", s.PercentRetain)
	}
}
