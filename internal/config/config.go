// Package config loads proverd's process configuration from environment
// variables, per spec §6. Kept outside the core packages so CLI argument
// parsing, logging setup and environment loading stay ambient/external
// concerns the task-lifecycle packages never import, per §1's explicit
// scope note.
package config

import (
	"os"
	"strconv"
)

// Config is the process-wide configuration read from the environment.
type Config struct {
	// Bind is the host:port the RPC server listens on (PROVERD_BIND).
	Bind string
	// LookupName is the optional DNS hostname:port for peer discovery
	// (PROVERD_LOOKUP). Empty disables peer discovery entirely.
	LookupName string
	// MaxTasks is the queue pruning threshold (MAX_TASKS); 0 disables
	// pruning.
	MaxTasks int
	// FullNode selects the aggregator role when true, worker otherwise
	// (FULL_NODE).
	FullNode bool
	// DumpDir is the directory ComputeWrapper writes parameter/key/proof
	// blobs to when PROVERD_DUMP is set; empty
	// disables dumping.
	DumpDir string
}

const defaultMaxTasks = 240

// Load reads Config from the environment, applying spec §6's defaults.
func Load() Config {
	cfg := Config{
		Bind:       os.Getenv("PROVERD_BIND"),
		LookupName: os.Getenv("PROVERD_LOOKUP"),
		MaxTasks:   defaultMaxTasks,
		FullNode:   false,
		DumpDir:    "",
	}

	if v, ok := os.LookupEnv("MAX_TASKS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxTasks = n
		}
	}

	if v, ok := os.LookupEnv("FULL_NODE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FullNode = b
		}
	}

	if _, ok := os.LookupEnv("PROVERD_DUMP"); ok {
		cfg.DumpDir = "."
	}

	return cfg
}
