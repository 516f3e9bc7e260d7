// Package app wires application dependencies.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"admission/internal/admission/config"
	"admission/internal/admission/core"
	"admission/internal/admission/observability"
	httptransport "admission/internal/admission/transport/http"
)

// Application holds core components for the service.
type Application struct {
	Config           *config.Config
	PolicyTable      *core.PolicyTable
	ClientStore      *core.ClientStore
	Limiter          *core.SlidingWindowLimiter
	BlockList        *core.BlockList
	Scanner          *core.SignatureScanner
	Recorder         *core.EventRecorder
	AdmissionHandler *core.AdmissionHandler
	AdminHandler     *core.AdminHandler
	Sweeper          *core.Sweeper
	ready            atomic.Bool
	httpTransport    *httptransport.HTTPTransport
	watcher          *config.Watcher
	metrics          observability.Metrics
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	logger           observability.Logger
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.EnableHTTP && cfg.HTTPListenAddr == "" {
		return nil, errors.New("http listen address is required")
	}
	if cfg.EnableAuth && cfg.AdminToken == "" {
		return nil, errors.New("admin token is required")
	}
	if cfg.HTTPReadTimeout < 0 {
		return nil, errors.New("http read timeout must be positive")
	}
	if cfg.HTTPWriteTimeout < 0 {
		return nil, errors.New("http write timeout must be positive")
	}
	if cfg.HTTPIdleTimeout < 0 {
		return nil, errors.New("http idle timeout must be positive")
	}
	if cfg.WatchPolicyFile && cfg.PolicyFile == "" {
		return nil, errors.New("policy file is required when watching is enabled")
	}
	if cfg.HTTPReadTimeout == 0 {
		cfg.HTTPReadTimeout = 5 * time.Second
	}
	if cfg.HTTPWriteTimeout == 0 {
		cfg.HTTPWriteTimeout = 10 * time.Second
	}
	if cfg.HTTPIdleTimeout == 0 {
		cfg.HTTPIdleTimeout = 60 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = time.Minute
	}
	if cfg.BurstCooldown <= 0 {
		cfg.BurstCooldown = time.Minute
	}
	if cfg.Logger == nil {
		logger, err := observability.NewProductionLogger()
		if err != nil {
			return nil, err
		}
		cfg.Logger = logger
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewPromMetrics()
	}

	var policyFile *config.PolicyFile
	if cfg.PolicyFile != "" {
		loaded, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		policyFile = loaded
		mergePolicyFile(cfg, policyFile)
	}

	policies := core.NewPolicyTable()
	if policyFile != nil {
		policyFile.ApplyPolicies(policies)
	}
	store := core.NewClientStore(cfg.Shards)
	limiter := core.NewSlidingWindowLimiter(store, cfg.BurstWindow, cfg.BurstCooldown)
	recorder := core.NewEventRecorder(cfg.Recorder, cfg.AlertFunc)
	blocks := core.NewBlockList(store, recorder, cfg.BlockList)
	signatures := cfg.Signatures
	if len(signatures) == 0 {
		signatures = core.DefaultSignatures()
	}
	scanner, err := core.NewSignatureScanner(signatures)
	if err != nil {
		return nil, err
	}
	handler := core.NewAdmissionHandler(policies, limiter, blocks, scanner, recorder, cfg.Logger, metrics)
	admin := core.NewAdminHandler(handler, limiter, blocks, recorder, cfg.Logger)
	sweeper := core.NewSweeper(store, blocks, recorder, cfg.Sweeper, cfg.Logger, metrics)

	app := &Application{
		Config:           cfg,
		PolicyTable:      policies,
		ClientStore:      store,
		Limiter:          limiter,
		BlockList:        blocks,
		Scanner:          scanner,
		Recorder:         recorder,
		AdmissionHandler: handler,
		AdminHandler:     admin,
		Sweeper:          sweeper,
		metrics:          metrics,
		logger:           cfg.Logger,
	}

	if cfg.WatchPolicyFile {
		app.watcher = config.NewWatcher(cfg.PolicyFile, app.applyPolicyFile, cfg.Logger)
	}

	if cfg.EnableHTTP {
		transport := httptransport.NewHTTPTransport(cfg.HTTPListenAddr, app.Ready)
		if err := transport.ServeAdmission(app.AdmissionHandler); err != nil {
			return nil, err
		}
		if err := transport.ServeAdmin(app.AdminHandler); err != nil {
			return nil, err
		}
		transportCfg := httptransport.HTTPTransportConfig{
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
			IdleTimeout:  cfg.HTTPIdleTimeout,
			MaxBodyBytes: cfg.MaxBodyBytes,
			EnableAuth:   cfg.EnableAuth,
			AdminToken:   cfg.AdminToken,
			Logger:       cfg.Logger,
		}
		if prom, ok := metrics.(*observability.PromMetrics); ok {
			transportCfg.Registry = prom.Registry()
		}
		transport.Configure(transportCfg)
		app.httpTransport = transport
	}

	return app, nil
}

// mergePolicyFile folds file-level thresholds into zero-valued config fields.
// Explicit Config values win over file values.
func mergePolicyFile(cfg *config.Config, file *config.PolicyFile) {
	if cfg.BlockList == (core.BlockListOptions{}) {
		cfg.BlockList = file.BlockListOptions()
	}
	if cfg.Recorder.Escalation == (core.EscalationRule{}) {
		rule, alertThreshold := file.EscalationRule()
		cfg.Recorder.Escalation = rule
		if cfg.Recorder.AlertThreshold == 0 {
			cfg.Recorder.AlertThreshold = alertThreshold
		}
	}
	if cfg.Recorder.DetectionWindow == 0 && file.Patterns.DetectionWindowSeconds > 0 {
		cfg.Recorder.DetectionWindow = time.Duration(file.Patterns.DetectionWindowSeconds) * time.Second
	}
	if cfg.Recorder.Retention == 0 && file.Patterns.RetentionHours > 0 {
		cfg.Recorder.Retention = time.Duration(file.Patterns.RetentionHours) * time.Hour
	}
	if cfg.Sweeper.Interval == 0 && file.Cleanup.IntervalSeconds > 0 {
		cfg.Sweeper.Interval = time.Duration(file.Cleanup.IntervalSeconds) * time.Second
	}
	if cfg.Sweeper.InactivityTTL == 0 && file.Cleanup.InactivityTTLSeconds > 0 {
		cfg.Sweeper.InactivityTTL = time.Duration(file.Cleanup.InactivityTTLSeconds) * time.Second
	}
}

// applyPolicyFile installs a reloaded policy table and thresholds.
func (app *Application) applyPolicyFile(file *config.PolicyFile) {
	if app == nil || file == nil {
		return
	}
	file.ApplyPolicies(app.PolicyTable)
	app.BlockList.SetOptions(file.BlockListOptions())
	rule, alertThreshold := file.EscalationRule()
	app.Recorder.SetEscalation(rule, alertThreshold)
	if app.logger != nil {
		app.logger.Info("policy file applied", map[string]any{
			"endpoints": len(file.EndpointPolicies),
			"roles":     len(file.RolePolicies),
			"ips":       len(file.IPPolicies),
		})
	}
}

// Start begins background work for the application.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if app.Sweeper != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.Sweeper.Start(ctx)
		}()
	}
	if app.watcher != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.watcher.Start(ctx)
		}()
	}
	if app.httpTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.httpTransport.Start()
		}()
	}

	app.ready.Store(true)
	if app.logger != nil && app.Config != nil {
		app.logger.Info("application started", map[string]any{
			"http_enabled": app.Config.EnableHTTP,
			"policy_file":  app.Config.PolicyFile,
			"watch_policy": app.Config.WatchPolicyFile,
		})
	}

	return nil
}

// Shutdown stops background work for the application.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app.ready.Store(false)
	if app.logger != nil {
		app.logger.Info("application shutdown", nil)
	}
	if app.httpTransport != nil {
		_ = app.httpTransport.Shutdown(ctx)
	}
	if app.cancel != nil {
		app.cancel()
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}
