// Package httptransport provides the HTTP surface for admission control.
package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"admission/internal/admission/core"
	"admission/internal/admission/observability"
)

const defaultMaxBodyBytes = 1 << 20

// HTTPTransportConfig carries transport settings.
type HTTPTransportConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	EnableAuth   bool
	AdminToken   string
	Logger       observability.Logger
	Registry     *prometheus.Registry
}

// HTTPTransport serves the admission, admin, and event query APIs.
type HTTPTransport struct {
	addr         string
	srv          *http.Server
	lis          net.Listener
	handler      *core.AdmissionHandler
	admin        *core.AdminHandler
	appReady     func() bool
	enableAuth   bool
	adminToken   string
	maxBodyBytes int64
	logger       observability.Logger
	registry     *prometheus.Registry
	cfg          HTTPTransportConfig
	mu           sync.Mutex
}

// NewHTTPTransport constructs a transport bound to an address.
func NewHTTPTransport(addr string, ready func() bool) *HTTPTransport {
	if addr == "" {
		addr = ":8080"
	}
	if ready == nil {
		ready = func() bool { return false }
	}
	return &HTTPTransport{addr: addr, appReady: ready, logger: observability.NopLogger{}}
}

// ServeAdmission registers the admission pipeline.
func (t *HTTPTransport) ServeAdmission(handler *core.AdmissionHandler) error {
	if handler == nil {
		return errors.New("admission handler is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

// ServeAdmin registers the admin handler.
func (t *HTTPTransport) ServeAdmin(admin *core.AdminHandler) error {
	if admin == nil {
		return errors.New("admin handler is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admin = admin
	return nil
}

// Configure applies transport settings.
func (t *HTTPTransport) Configure(cfg HTTPTransportConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.enableAuth = cfg.EnableAuth
	t.adminToken = cfg.AdminToken
	t.maxBodyBytes = cfg.MaxBodyBytes
	if cfg.Logger != nil {
		t.logger = cfg.Logger
	}
	t.registry = cfg.Registry
}

// Start begins serving HTTP requests.
func (t *HTTPTransport) Start() error {
	if t == nil {
		return errors.New("http transport is nil")
	}
	t.mu.Lock()
	if t.handler == nil || t.admin == nil {
		t.mu.Unlock()
		return errors.New("handlers must be registered before starting")
	}
	listener := t.lis
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", t.addr)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		t.lis = listener
	}
	if t.srv == nil {
		router := chi.NewRouter()
		t.registerRoutes(router)
		t.srv = &http.Server{
			Handler:      router,
			ReadTimeout:  t.cfg.ReadTimeout,
			WriteTimeout: t.cfg.WriteTimeout,
			IdleTimeout:  t.cfg.IdleTimeout,
		}
	}
	srv := t.srv
	t.mu.Unlock()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound listener address.
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lis != nil {
		return t.lis.Addr().String()
	}
	return t.addr
}
