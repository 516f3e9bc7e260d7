// Package config provides policy file loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"admission/internal/admission/core"
)

// PolicyEntry is one quota policy in the file.
type PolicyEntry struct {
	MaxRequests    int `yaml:"max_requests"`
	WindowSeconds  int `yaml:"window_seconds"`
	BurstAllowance int `yaml:"burst_allowance"`
}

// PolicyFile is the on-disk policy and threshold table.
type PolicyFile struct {
	DefaultPolicy    PolicyEntry            `yaml:"default_policy"`
	EndpointPolicies map[string]PolicyEntry `yaml:"endpoint_policies"`
	RolePolicies     map[string]PolicyEntry `yaml:"role_policies"`
	IPPolicies       map[string]PolicyEntry `yaml:"ip_policies"`

	Escalation struct {
		ViolationThreshold int `yaml:"violation_threshold"`
		PatternCount       int `yaml:"pattern_count"`
		BlockSeconds       int `yaml:"block_seconds"`
	} `yaml:"escalation"`

	Patterns struct {
		DetectionWindowSeconds int   `yaml:"detection_window_seconds"`
		AlertThreshold         int64 `yaml:"alert_threshold"`
		CountWarning           int64 `yaml:"count_warning"`
		CountError             int64 `yaml:"count_error"`
		CountCritical          int64 `yaml:"count_critical"`
		UserThreshold          int   `yaml:"user_threshold"`
		RetentionHours         int   `yaml:"retention_hours"`
	} `yaml:"patterns"`

	Cleanup struct {
		IntervalSeconds      int `yaml:"interval_seconds"`
		InactivityTTLSeconds int `yaml:"inactivity_ttl_seconds"`
	} `yaml:"cleanup"`
}

// LoadPolicyFile reads and validates the YAML policy table. Malformed
// policies are configuration errors, fatal at startup and never deferred to
// request time.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.CodeConfiguration, fmt.Sprintf("read policy file: %v", err), core.ErrConfiguration)
	}
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, core.Wrap(core.CodeConfiguration, fmt.Sprintf("parse policy file: %v", err), core.ErrConfiguration)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *PolicyFile) validate() error {
	check := func(name string, entry PolicyEntry) error {
		if entry.MaxRequests <= 0 {
			return core.Wrap(core.CodeConfiguration, fmt.Sprintf("policy %s: max_requests must be positive", name), core.ErrConfiguration)
		}
		if entry.WindowSeconds <= 0 {
			return core.Wrap(core.CodeConfiguration, fmt.Sprintf("policy %s: window_seconds must be positive", name), core.ErrConfiguration)
		}
		if entry.BurstAllowance < 0 {
			return core.Wrap(core.CodeConfiguration, fmt.Sprintf("policy %s: burst_allowance must not be negative", name), core.ErrConfiguration)
		}
		return nil
	}
	if f.DefaultPolicy != (PolicyEntry{}) {
		if err := check("default_policy", f.DefaultPolicy); err != nil {
			return err
		}
	}
	for prefix, entry := range f.EndpointPolicies {
		if prefix == "" {
			return core.Wrap(core.CodeConfiguration, "endpoint policy with empty prefix", core.ErrConfiguration)
		}
		if err := check("endpoint "+prefix, entry); err != nil {
			return err
		}
	}
	for role, entry := range f.RolePolicies {
		if err := check("role "+role, entry); err != nil {
			return err
		}
	}
	for ip, entry := range f.IPPolicies {
		if err := check("ip "+ip, entry); err != nil {
			return err
		}
	}
	return nil
}

func (e PolicyEntry) policy() core.RateLimitPolicy {
	return core.RateLimitPolicy{
		MaxRequests:    e.MaxRequests,
		Window:         time.Duration(e.WindowSeconds) * time.Second,
		BurstAllowance: e.BurstAllowance,
	}
}

// ApplyPolicies installs the file's policy table.
func (f *PolicyFile) ApplyPolicies(table *core.PolicyTable) {
	if f == nil || table == nil {
		return
	}
	endpoints := make([]core.EndpointPolicy, 0, len(f.EndpointPolicies))
	for prefix, entry := range f.EndpointPolicies {
		endpoints = append(endpoints, core.EndpointPolicy{Prefix: prefix, Policy: entry.policy()})
	}
	roles := make(map[string]core.RateLimitPolicy, len(f.RolePolicies))
	for role, entry := range f.RolePolicies {
		roles[role] = entry.policy()
	}
	ips := make(map[string]core.RateLimitPolicy, len(f.IPPolicies))
	for ip, entry := range f.IPPolicies {
		ips[ip] = entry.policy()
	}
	fallback := core.DefaultPolicy
	if f.DefaultPolicy != (PolicyEntry{}) {
		fallback = f.DefaultPolicy.policy()
	}
	table.Replace(endpoints, roles, ips, fallback)
}

// BlockListOptions converts the file's escalation thresholds.
func (f *PolicyFile) BlockListOptions() core.BlockListOptions {
	opts := core.DefaultBlockListOptions()
	if f == nil {
		return opts
	}
	if f.Escalation.ViolationThreshold > 0 {
		opts.ViolationThreshold = f.Escalation.ViolationThreshold
	}
	if f.Escalation.PatternCount > 0 {
		opts.PatternCount = f.Escalation.PatternCount
	}
	if f.Escalation.BlockSeconds > 0 {
		opts.BlockDuration = time.Duration(f.Escalation.BlockSeconds) * time.Second
	}
	return opts
}

// EscalationRule converts the file's pattern thresholds.
func (f *PolicyFile) EscalationRule() (core.EscalationRule, int64) {
	rule := core.DefaultEscalationRule()
	var alertThreshold int64
	if f == nil {
		return rule, alertThreshold
	}
	if f.Patterns.CountWarning > 0 {
		rule.CountWarning = f.Patterns.CountWarning
	}
	if f.Patterns.CountError > 0 {
		rule.CountError = f.Patterns.CountError
	}
	if f.Patterns.CountCritical > 0 {
		rule.CountCritical = f.Patterns.CountCritical
	}
	if f.Patterns.UserThreshold > 0 {
		rule.UserThreshold = f.Patterns.UserThreshold
	}
	if f.Patterns.AlertThreshold > 0 {
		alertThreshold = f.Patterns.AlertThreshold
	}
	return rule, alertThreshold
}
