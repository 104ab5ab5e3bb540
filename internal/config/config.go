// Package config loads the relayer's environment configuration: chain
// RPC endpoints, the on-chain program id, database connection
// parameters, the verifying-key directory, and tree topology (§6
// "Environment").
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings a relayerd
// process needs at startup. The RPC, websocket, program-id, database and
// verifying-key-directory settings are required, and Load fails fast when
// one is missing or the tree depth is out of range rather than starting
// with a zero-value field (§4.4, §9: "Fatal initialization errors ...
// abort process startup"). HTTPAddr and the numeric tree settings fall
// back to defaults when unset.
type Config struct {
	RPCURL        string
	WSURL         string
	ProgramID     string
	DatabaseDSN   string
	VKDir         string
	TreeID        uint32
	TreeDepth     uint8
	RootCacheSize int
	HTTPAddr      string
}

// Load reads a .env file if present (ignored if absent — production
// deployments set real environment variables) then builds a Config from
// the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:      os.Getenv("RELAYER_RPC_URL"),
		WSURL:       os.Getenv("RELAYER_WS_URL"),
		ProgramID:   os.Getenv("RELAYER_PROGRAM_ID"),
		DatabaseDSN: os.Getenv("RELAYER_DATABASE_DSN"),
		VKDir:       os.Getenv("RELAYER_VK_DIR"),
		HTTPAddr:    envOr("RELAYER_HTTP_ADDR", ":8080"),
	}

	treeID, err := envUint32("RELAYER_TREE_ID", 0)
	if err != nil {
		return nil, err
	}
	cfg.TreeID = treeID

	depth, err := envUint8("RELAYER_TREE_DEPTH", 20)
	if err != nil {
		return nil, err
	}
	cfg.TreeDepth = depth

	rootCacheSize, err := envInt("RELAYER_ROOT_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	cfg.RootCacheSize = rootCacheSize

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("config: RELAYER_RPC_URL is required")
	}
	if c.WSURL == "" {
		return fmt.Errorf("config: RELAYER_WS_URL is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("config: RELAYER_PROGRAM_ID is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: RELAYER_DATABASE_DSN is required")
	}
	if c.VKDir == "" {
		return fmt.Errorf("config: RELAYER_VK_DIR is required")
	}
	if c.TreeDepth < 1 || c.TreeDepth > 32 {
		return fmt.Errorf("config: RELAYER_TREE_DEPTH must be in [1,32], got %d", c.TreeDepth)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint32(key string, def uint32) (uint32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return uint32(n), nil
}

func envUint8(key string, def uint8) (uint8, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return uint8(n), nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
