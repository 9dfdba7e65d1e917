package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quantfold/tip/errs"
)

func TestDefaultFavoursLocalDevelopment(t *testing.T) {
	cfg := Default()
	if cfg.Env != EnvDev {
		t.Fatalf("expected default environment dev, got %s", cfg.Env)
	}
	if cfg.S3Bucket != "tip-dev" {
		t.Fatalf("expected dev bucket, got %s", cfg.S3Bucket)
	}
	if cfg.PostgresDSN == "" || cfg.StateDBPath == "" {
		t.Fatalf("expected local defaults for DSN and state db")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("TIP_ENV", "STAGING")
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/tip")
	t.Setenv("S3_BUCKET", "tip-staging")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT_URL", "http://localhost:4566")
	t.Setenv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/tip-events")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/services/x")

	cfg := FromEnv()
	if cfg.Env != EnvStaging {
		t.Fatalf("expected staging environment, got %s", cfg.Env)
	}
	if cfg.PostgresDSN != "postgres://u:p@db:5432/tip" {
		t.Fatalf("unexpected DSN %s", cfg.PostgresDSN)
	}
	if cfg.S3Bucket != "tip-staging" || cfg.AWSRegion != "eu-west-1" {
		t.Fatalf("expected bucket and region overrides, got %s %s", cfg.S3Bucket, cfg.AWSRegion)
	}
	if err := cfg.RequireQueue(); err != nil {
		t.Fatalf("queue URL set, RequireQueue must pass: %v", err)
	}
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Env = "qa"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure for unknown environment")
	}
	if !errs.IsCode(err, errs.CodeConfig) {
		t.Fatalf("expected config error code, got %v", err)
	}
}

func TestRequireQueueFailsWhenUnset(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireQueue(); err == nil {
		t.Fatalf("expected missing queue URL to fail")
	}
}

func TestLoadConnectorsMissingFileYieldsDefaults(t *testing.T) {
	cfg, fromFile, err := LoadConnectors(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if fromFile {
		t.Fatalf("expected defaults, not file")
	}
	if got := cfg.Reddit.Subreddits; len(got) != 1 || got[0] != "wallstreetbets" {
		t.Fatalf("unexpected default subreddits %v", got)
	}
	if cfg.Edgar.MaxRPS != 2 {
		t.Fatalf("unexpected default edgar rps %v", cfg.Edgar.MaxRPS)
	}
}

func TestLoadConnectorsMergesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectors.yaml")
	body := `
edgar:
  identity:
    name: quantfold-tip
    email: ops@quantfold.dev
  ciks: ["320193", "0001318605"]
  maxRps: 4
reddit:
  identity:
    name: quantfold-tip
    email: ops@quantfold.dev
  subreddits: [wallstreetbets, stocks]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, fromFile, err := LoadConnectors(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !fromFile {
		t.Fatalf("expected file to be read")
	}
	if len(cfg.Edgar.CIKs) != 2 || cfg.Edgar.MaxRPS != 4 {
		t.Fatalf("edgar config not merged: %+v", cfg.Edgar)
	}
	if cfg.Reddit.MaxRPS != 1 {
		t.Fatalf("reddit rps should keep default, got %v", cfg.Reddit.MaxRPS)
	}
	if err := cfg.Edgar.Validate(); err != nil {
		t.Fatalf("edgar config must validate: %v", err)
	}
	if got := cfg.Edgar.Identity.UserAgent("edgar-connector"); got != "quantfold-tip ops@quantfold.dev (edgar-connector)" {
		t.Fatalf("unexpected user agent %q", got)
	}
}

func TestEdgarValidateRequiresWatchlist(t *testing.T) {
	cfg := DefaultConnectors().Edgar
	cfg.Identity = Identity{Name: "quantfold-tip", Email: "ops@quantfold.dev"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty watchlist to fail validation")
	}
}
