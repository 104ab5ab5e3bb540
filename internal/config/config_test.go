package config

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAYER_RPC_URL", "http://localhost:8899")
	t.Setenv("RELAYER_WS_URL", "ws://localhost:8900")
	t.Setenv("RELAYER_PROGRAM_ID", "11111111111111111111111111111111")
	t.Setenv("RELAYER_DATABASE_DSN", "postgres://localhost/relayer")
	t.Setenv("RELAYER_VK_DIR", "/etc/relayer/vks")
}

func TestLoad_SucceedsWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TreeDepth != 20 {
		t.Fatalf("TreeDepth = %d, want default 20", cfg.TreeDepth)
	}
	if cfg.RootCacheSize != 64 {
		t.Fatalf("RootCacheSize = %d, want default 64", cfg.RootCacheSize)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want default :8080", cfg.HTTPAddr)
	}
}

func TestLoad_MissingRequiredFieldFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAYER_RPC_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with RELAYER_RPC_URL unset")
	}
}

func TestLoad_RejectsOutOfRangeTreeDepth(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAYER_TREE_DEPTH", "64")

	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with tree depth out of [1,32] range")
	}
}

func TestLoad_RejectsMalformedIntegerEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAYER_TREE_ID", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatalf("Load succeeded with a malformed RELAYER_TREE_ID")
	}
}
