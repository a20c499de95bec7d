package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("USER_SERVICE_URL", "http://svc:9000")
	t.Setenv("SYNC_FLAGS_FILE", "")
	t.Setenv("SYNC_SUMMARY_RANGE", "")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.RealtimeURL != "http://svc:9000" {
		t.Fatalf("realtime url: want=http://svc:9000 got=%s", cfg.RealtimeURL)
	}
	if cfg.SummaryRange != domain.Range30d || cfg.CacheTTL != 5*time.Minute || cfg.TrendEpsilon != 0.02 {
		t.Fatalf("defaults: got=%+v", cfg)
	}
	if cfg.Features.PeerComparison || cfg.Features.Predictions {
		t.Fatalf("features: want all off got=%+v", cfg.Features)
	}
}

func TestFlagsFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	body := "site_key: abc123\nfeatures:\n  peer_comparison: true\n  predictions: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SYNC_FLAGS_FILE", path)
	t.Setenv("FEATURE_PREDICTIONS", "false")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SiteKey != "abc123" || !cfg.Features.PeerComparison || cfg.Features.Predictions {
		t.Fatalf("config: got site=%q features=%+v", cfg.SiteKey, cfg.Features)
	}
}

func TestFromEnvRejectsBadRange(t *testing.T) {
	t.Setenv("SYNC_FLAGS_FILE", "")
	t.Setenv("SYNC_SUMMARY_RANGE", "fortnight")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("FromEnv: want error for bad range")
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SYNC_TEST_A=from_file\nSYNC_TEST_B=from_file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SYNC_TEST_A", "from_env")
	t.Setenv("SYNC_TEST_B", "")
	os.Unsetenv("SYNC_TEST_B")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SYNC_TEST_A"); got != "from_env" {
		t.Fatalf("A: want=from_env got=%s", got)
	}
	if got := os.Getenv("SYNC_TEST_B"); got != "from_file" {
		t.Fatalf("B: want=from_file got=%s", got)
	}
}
