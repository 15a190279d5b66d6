package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "copilot.yaml", `
server:
  listen_addr: ":9090"
  rate_limit:
    requests_per_minute: 60
    burst_size: 10
confirmation:
  ttl_seconds: 1800
storage:
  driver: sqlite
providers:
  default: static
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Addr(); got != ":9090" {
		t.Errorf("Addr() = %q, want :9090", got)
	}
	if got := cfg.Confirmation.TTL(); got != 30*time.Minute {
		t.Errorf("TTL() = %v, want 30m", got)
	}
	if got := cfg.StorageDriverName(); got != "sqlite" {
		t.Errorf("StorageDriverName() = %q, want sqlite", got)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "copilot.json", `{
  "server": {"listen_addr": ":8088"},
  "providers": {"default": "static"}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Addr(); got != ":8088" {
		t.Errorf("Addr() = %q, want :8088", got)
	}
}

func TestDefaults(t *testing.T) {
	path := writeConfig(t, "copilot.yaml", `providers: {default: static}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Addr(); got != ":8080" {
		t.Errorf("default Addr() = %q", got)
	}
	if got := cfg.Confirmation.TTL(); got != time.Hour {
		t.Errorf("default TTL() = %v", got)
	}
	if got := cfg.Retention.CronSchedule(); got != "*/5 * * * *" {
		t.Errorf("nil retention CronSchedule() = %q", got)
	}
	if got := cfg.Retention.ResolvedRetention(); got != 72*time.Hour {
		t.Errorf("nil retention ResolvedRetention() = %v", got)
	}
	if got := cfg.Providers.DefaultProvider(); got != "static" {
		t.Errorf("DefaultProvider() = %q", got)
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	path := writeConfig(t, "copilot.yaml", `
storage:
  driver: postgres
providers: {default: static}
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "storage.postgres.dsn") {
		t.Fatalf("Load err = %v, want missing DSN error", err)
	}
}

func TestLoad_BadDriver(t *testing.T) {
	path := writeConfig(t, "copilot.yaml", `
storage:
  driver: mysql
providers: {default: static}
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("Load err = %v, want unsupported driver error", err)
	}
}

func TestLoad_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, "copilot.yaml", `
providers:
  default: openai
  openai:
    model: gpt-4o-mini
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("Load err = %v, want missing api_key error", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("COPILOT_DB_DSN", "postgres://env/db")
	path := writeConfig(t, "copilot.yaml", `
storage:
  driver: postgres
  postgres:
    dsn: postgres://file/db
providers:
  default: openai
  openai:
    model: gpt-4o-mini
    api_key: sk-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Providers.OpenAI.APIKey; got != "sk-env" {
		t.Errorf("APIKey = %q, want env override", got)
	}
	if got := cfg.Storage.Postgres.DSN; got != "postgres://env/db" {
		t.Errorf("DSN = %q, want env override", got)
	}
}

func TestLoad_DataDirPaths(t *testing.T) {
	t.Setenv("COPILOT_DATA_DIR", "/var/lib/copilot")
	path := writeConfig(t, "copilot.yaml", `providers: {default: static}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.DatabasePath(); got != filepath.Join("/var/lib/copilot", "copilot.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
	if got := cfg.AuditLogPath(); got != filepath.Join("/var/lib/copilot", "audit.jsonl") {
		t.Errorf("AuditLogPath() = %q", got)
	}
}
