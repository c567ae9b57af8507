package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zgrid.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Coordinator.Port != 8734 {
		t.Fatalf("port = %d", cfg.Coordinator.Port)
	}
	if cfg.Worker.CoordinatorURL != "http://127.0.0.1:8734" {
		t.Fatalf("coordinator url = %q", cfg.Worker.CoordinatorURL)
	}
	if cfg.Worker.MaxWorkers != 2 {
		t.Fatalf("max workers = %d", cfg.Worker.MaxWorkers)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval())
	}
	if !filepath.IsAbs(cfg.DataDir) || !filepath.IsAbs(cfg.Mdb.RegistryPath) {
		t.Fatalf("paths were not resolved: %q %q", cfg.DataDir, cfg.Mdb.RegistryPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
data_dir = "grid-data"
log_level = "debug"

[coordinator]
port = 9000

[worker]
max_workers = 8
poll_interval = "500ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Coordinator.Port != 9000 {
		t.Fatalf("port = %d", cfg.Coordinator.Port)
	}
	if cfg.Worker.MaxWorkers != 8 {
		t.Fatalf("max workers = %d", cfg.Worker.MaxWorkers)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.PollInterval())
	}
	if !strings.HasSuffix(cfg.DataDir, "grid-data") || !filepath.IsAbs(cfg.DataDir) {
		t.Fatalf("data dir = %q, want absolute under config dir", cfg.DataDir)
	}
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("slog level = %s", cfg.SlogLevel())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad log level", `log_level = "chatty"`},
		{"bad port", "[coordinator]\nport = 99999"},
		{"bad poll interval", "[worker]\npoll_interval = \"soon\""},
		{"bad max workers", "[worker]\nmax_workers = -1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
}

func TestEnvOverridesCoordinatorURL(t *testing.T) {
	t.Setenv("ZGRID_COORDINATOR_URL", "http://grid.internal:9999")

	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.CoordinatorURL != "http://grid.internal:9999" {
		t.Fatalf("coordinator url = %q", cfg.Worker.CoordinatorURL)
	}
}
