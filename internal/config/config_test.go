package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Client.FailurePolicy != "repull" {
		t.Errorf("Expected repull policy, got %q", cfg.Client.FailurePolicy)
	}
	if !cfg.Client.AllowAnonymous {
		t.Error("Expected anonymous use allowed by default")
	}
	if cfg.Client.PushTimeout != 15*time.Second {
		t.Errorf("Expected 15s push timeout, got %v", cfg.Client.PushTimeout)
	}
	if cfg.Planning.WelcomeDelay != 2*time.Second {
		t.Errorf("Expected 2s welcome delay, got %v", cfg.Planning.WelcomeDelay)
	}
	if cfg.Server.Listen == "" || cfg.Client.API == "" {
		t.Errorf("Expected listen and api defaults, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  listen: ":9000"
  tokens:
    - token: S3cret-Token
      user: alice
    - token: ""
      user: nobody
client:
  failure_policy: rollback
  push_timeout: 3s
  allow_anonymous: false
planning:
  welcome_delay: 500ms
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("Expected :9000, got %q", cfg.Server.Listen)
	}
	tokens := cfg.Server.TokenMap()
	if len(tokens) != 1 || tokens["S3cret-Token"] != "alice" {
		t.Errorf("Expected case-preserved token mapping, got %+v", tokens)
	}
	if cfg.Client.FailurePolicy != "rollback" || cfg.Client.PushTimeout != 3*time.Second {
		t.Errorf("Unexpected client config: %+v", cfg.Client)
	}
	if cfg.Client.AllowAnonymous {
		t.Error("Expected allow_anonymous false")
	}
	if cfg.Planning.WelcomeDelay != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", cfg.Planning.WelcomeDelay)
	}
	if cfg.Client.RequestTimeout != 10*time.Second {
		t.Errorf("Expected default request timeout kept, got %v", cfg.Client.RequestTimeout)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRIO_CLIENT_API", "http://example.test")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Client.API != "http://example.test" {
		t.Errorf("Expected env override, got %q", cfg.Client.API)
	}
}

func TestInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("client:\n  failure_policy: ignore\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown failure policy")
	}
}
