package main

import (
	"flag"
	"io"
	"time"

	"admission/internal/admission/config"
)

// cliFlags mirrors the subset of Config settable from the command line.
type cliFlags struct {
	httpAddr        string
	enableHTTP      bool
	enableAuth      bool
	adminToken      string
	policyFile      string
	watchPolicyFile bool
	shards          int
	burstCooldownS  int
}

func newFlagSet(name string, output io.Writer, values *cliFlags) *flag.FlagSet {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&values.httpAddr, "http_addr", ":8080", "http listen address")
	fs.BoolVar(&values.enableHTTP, "enable_http", true, "enable the http transport")
	fs.BoolVar(&values.enableAuth, "enable_auth", false, "require bearer auth on admin routes")
	fs.StringVar(&values.adminToken, "admin_token", "", "admin bearer token")
	fs.StringVar(&values.policyFile, "policy_file", "", "path to the yaml policy table")
	fs.BoolVar(&values.watchPolicyFile, "watch_policy_file", false, "reload the policy table on change")
	fs.IntVar(&values.shards, "shards", 0, "client store shard count")
	fs.IntVar(&values.burstCooldownS, "burst_cooldown_seconds", 0, "burst cooldown in seconds")
	return fs
}

func (f cliFlags) apply(cfg *config.Config) {
	cfg.HTTPListenAddr = f.httpAddr
	cfg.EnableHTTP = f.enableHTTP
	cfg.EnableAuth = f.enableAuth
	if f.adminToken != "" {
		cfg.AdminToken = f.adminToken
	}
	if f.policyFile != "" {
		cfg.PolicyFile = f.policyFile
	}
	cfg.WatchPolicyFile = cfg.WatchPolicyFile || f.watchPolicyFile
	if f.shards > 0 {
		cfg.Shards = f.shards
	}
	if f.burstCooldownS > 0 {
		cfg.BurstCooldown = time.Duration(f.burstCooldownS) * time.Second
	}
}
