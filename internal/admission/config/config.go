// Package config provides configuration for the application wiring.
package config

import (
	"time"

	"admission/internal/admission/core"
	"admission/internal/admission/observability"
)

// Config captures dependency and runtime settings.
type Config struct {
	HTTPListenAddr   string
	EnableHTTP       bool
	EnableAuth       bool
	AdminToken       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	MaxBodyBytes     int64

	// PolicyFile points at the YAML policy/threshold table. Optional; the
	// built-in defaults apply when empty.
	PolicyFile      string
	WatchPolicyFile bool

	Shards        int
	BurstWindow   time.Duration
	BurstCooldown time.Duration

	BlockList  core.BlockListOptions
	Recorder   core.RecorderOptions
	Sweeper    core.SweeperOptions
	Signatures []core.ThreatSignature

	AlertFunc core.AlertFunc
	Logger    observability.Logger
	Metrics   observability.Metrics
}
