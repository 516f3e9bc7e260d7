// Package config provides environment config overrides.
package config

import (
	"strconv"
	"strings"
	"time"

	"admission/internal/admission/core"
)

// ApplyEnvOverrides applies ADMISSION_* environment variables to the config.
func ApplyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return core.Wrap(core.CodeConfiguration, "config is required", core.ErrConfiguration)
	}
	values := envMap(environ)
	if value, ok := values["ADMISSION_HTTP_ADDR"]; ok {
		cfg.HTTPListenAddr = value
	}
	if value, ok := values["ADMISSION_ENABLE_HTTP"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_ENABLE_HTTP", value)
		if err != nil {
			return err
		}
		cfg.EnableHTTP = parsed
	}
	if value, ok := values["ADMISSION_ENABLE_AUTH"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_ENABLE_AUTH", value)
		if err != nil {
			return err
		}
		cfg.EnableAuth = parsed
	}
	if value, ok := values["ADMISSION_ADMIN_TOKEN"]; ok {
		cfg.AdminToken = value
	}
	if value, ok := values["ADMISSION_POLICY_FILE"]; ok {
		cfg.PolicyFile = value
	}
	if value, ok := values["ADMISSION_WATCH_POLICY_FILE"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_WATCH_POLICY_FILE", value)
		if err != nil {
			return err
		}
		cfg.WatchPolicyFile = parsed
	}
	if value, ok := values["ADMISSION_SHARDS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_SHARDS", value)
		if err != nil {
			return err
		}
		cfg.Shards = int(parsed)
	}
	if value, ok := values["ADMISSION_BURST_COOLDOWN_SECONDS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_BURST_COOLDOWN_SECONDS", value)
		if err != nil {
			return err
		}
		cfg.BurstCooldown = time.Duration(parsed) * time.Second
	}
	if value, ok := values["ADMISSION_SWEEP_INTERVAL_SECONDS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_SWEEP_INTERVAL_SECONDS", value)
		if err != nil {
			return err
		}
		cfg.Sweeper.Interval = time.Duration(parsed) * time.Second
	}
	if value, ok := values["ADMISSION_INACTIVITY_TTL_SECONDS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_INACTIVITY_TTL_SECONDS", value)
		if err != nil {
			return err
		}
		cfg.Sweeper.InactivityTTL = time.Duration(parsed) * time.Second
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, core.Wrap(core.CodeConfiguration, "invalid env value for "+name, core.ErrConfiguration)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, core.Wrap(core.CodeConfiguration, "invalid env value for "+name, core.ErrConfiguration)
	}
	return parsed, nil
}
