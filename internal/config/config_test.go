package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.Audit.Path != def.Audit.Path || !cfg.Audit.Enabled {
		t.Errorf("expected defaults, got %+v", cfg.Audit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected default level warn, got %q", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
env:
  clear: true
  keep: [HOME]
  vars:
    LANG: C
log:
  level: debug
audit:
  enabled: false
  path: ~/spm/audit.jsonl
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Env.Clear || len(cfg.Env.Keep) != 1 || cfg.Env.Vars["LANG"] != "C" {
		t.Errorf("unexpected env section %+v", cfg.Env)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Log.Level)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled")
	}
	home, _ := os.UserHomeDir()
	if cfg.Audit.Path != filepath.Join(home, "spm", "audit.jsonl") {
		t.Errorf("~ not expanded: %q", cfg.Audit.Path)
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := writeConfig(t, "env: [unclosed\n")
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("SPM_LOG_LEVEL", "error")
	t.Setenv("SPM_LOG_DEV", "true")
	t.Setenv("SPM_AUDIT_ENABLED", "false")
	t.Setenv("SPM_AUDIT_PATH", "/tmp/spm-audit.jsonl")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" || !cfg.Log.Development {
		t.Errorf("log overrides not applied: %+v", cfg.Log)
	}
	if cfg.Audit.Enabled || cfg.Audit.Path != "/tmp/spm-audit.jsonl" {
		t.Errorf("audit overrides not applied: %+v", cfg.Audit)
	}
	if lc := cfg.Logging(); lc.Level != "error" || !lc.Development {
		t.Errorf("unexpected logging config %+v", lc)
	}
}

func TestEnvironmentOverrideInvalid(t *testing.T) {
	t.Setenv("SPM_LOG_DEV", "sometimes")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a non-boolean override")
	}
}

func TestEnvPolicy(t *testing.T) {
	t.Setenv("SPM_TEST_KEEP", "kept")
	t.Setenv("SPM_TEST_DROP", "dropped")

	cfg := DefaultConfig()
	if p := cfg.EnvPolicy(); p.IsCleared() || len(p.Vars()) != 0 {
		t.Errorf("default policy should inherit, got %v", p.Vars())
	}

	cfg.Env = EnvConfig{Clear: true, Keep: []string{"SPM_TEST_KEEP"}, Vars: map[string]string{"LANG": "C"}}
	p := cfg.EnvPolicy()
	if !p.IsCleared() {
		t.Fatal("expected a cleared policy")
	}
	vars := p.Vars()
	if vars["SPM_TEST_KEEP"] != "kept" || vars["LANG"] != "C" || len(vars) != 2 {
		t.Errorf("unexpected vars %v", vars)
	}

	cfg.Env = EnvConfig{Vars: map[string]string{"EXTRA": "1"}}
	if p := cfg.EnvPolicy(); p.IsCleared() || p.Vars()["EXTRA"] != "1" {
		t.Errorf("expected a merge policy, got %v", p.Vars())
	}
}
