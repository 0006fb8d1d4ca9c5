package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Listen  string   `yaml:"listen" toml:"listen"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	Engine  struct {
		Threshold int64 `yaml:"threshold" toml:"threshold"`
	} `yaml:"engine" toml:"engine"`
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "streakd.yaml", "listen: \":9000\"\ntimeout: 90s\nengine:\n  threshold: 150\n")
	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Timeout.Duration != 90*time.Second || cfg.Engine.Threshold != 150 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "streakd.toml", "listen = \":9001\"\ntimeout = \"15m\"\n\n[engine]\nthreshold = 120\n")
	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9001" || cfg.Timeout.Duration != 15*time.Minute || cfg.Engine.Threshold != 120 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for name, contents := range map[string]string{
		"bad.yaml": "listen: \":9000\"\nlisten_addr: oops\n",
		"bad.toml": "listen = \":9000\"\nlisten_addr = \"oops\"\n",
	} {
		var cfg sample
		err := Load(writeFile(t, name, contents), &cfg)
		if err == nil || !strings.Contains(err.Error(), "listen_addr") {
			t.Fatalf("%s: expected unknown key error, got %v", name, err)
		}
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	var cfg sample
	if err := Load(writeFile(t, "bad.yaml", "timeout: soon\n"), &cfg); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	var cfg sample
	if err := Load(writeFile(t, "empty.yaml", "\n"), &cfg); err != nil {
		t.Fatalf("empty config should decode: %v", err)
	}
}
