package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/router"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/audit"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

// Server represents the HTTP server and the key machinery behind it.
type Server struct {
	cfg     *Config
	version string
	srv     *http.Server
	adapter backend.Adapter
	auditW  audit.Writer
}

// New creates a new Server.
func New(cfg *Config, version string) *Server {
	return &Server{
		cfg:     cfg,
		version: version,
	}
}

// Start wires the backend, registry and dispatcher, then serves HTTP
// until shutdown.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	adapter, err := s.openBackend()
	if err != nil {
		return err
	}
	s.adapter = adapter

	auditWriter, err := s.openAudit()
	if err != nil {
		return err
	}
	s.auditW = auditWriter

	store := webcrypto.NewFileStore(filepath.Join(s.cfg.StateDir, "registry"))
	registry, err := webcrypto.NewRegistry(context.Background(), store)
	if err != nil {
		return fmt.Errorf("failed to load key registry: %w", err)
	}

	dispatcher := webcrypto.NewDispatcher(registry, adapter, auditWriter)

	handler := router.New(&router.Config{
		Version: s.version,
		Backend: s.cfg.Backend,
	}, dispatcher)

	s.srv = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.printStartupInfo(registry)

	return s.run()
}

// openBackend builds the configured backend adapter.
func (s *Server) openBackend() (backend.Adapter, error) {
	switch s.cfg.Backend {
	case "pkcs11":
		hsmCfg, err := backend.LoadHSMConfig(s.cfg.HSMConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load HSM config: %w", err)
		}
		adapter, err := backend.NewPKCS11(hsmCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open PKCS#11 backend: %w", err)
		}
		return adapter, nil
	default:
		keystore := filepath.Join(s.cfg.StateDir, "keystore")
		return backend.NewSoftware(keystore, s.cfg.Passphrase()), nil
	}
}

// openAudit opens the audit log when configured.
func (s *Server) openAudit() (audit.Writer, error) {
	if s.cfg.AuditLog == "" {
		return audit.NopWriter{}, nil
	}
	w, err := audit.NewFileWriter(s.cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return w, nil
}

// run serves HTTP and handles graceful shutdown.
func (s *Server) run() error {
	errChan := make(chan error, 1)

	go func() {
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			errChan <- s.srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			errChan <- s.srv.ListenAndServe()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		return s.shutdown()
	}

	return nil
}

// shutdown gracefully stops the HTTP server and releases the backend.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)

	if closer, ok := s.adapter.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if closer, ok := s.auditW.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	if err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	log.Println("Server stopped gracefully")
	return nil
}

// printStartupInfo prints server startup information.
func (s *Server) printStartupInfo(registry *webcrypto.Registry) {
	fmt.Println()
	fmt.Println("WebCrypto Key Server")
	fmt.Println("====================")
	fmt.Printf("  Version:  %s\n", s.version)
	fmt.Printf("  Address:  http://%s\n", s.cfg.Address())
	fmt.Printf("  Backend:  %s\n", s.cfg.Backend)
	fmt.Printf("  Keys:     %d\n", len(registry.List()))
	if s.cfg.TLSCert != "" {
		fmt.Println("  TLS:      enabled")
	}
	if s.cfg.AuditLog != "" {
		fmt.Printf("  Audit:    %s\n", s.cfg.AuditLog)
	}
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health              - Health check")
	fmt.Println("  GET  /ready               - Readiness check")
	fmt.Println("  GET  /api/openapi.yaml    - OpenAPI specification")
	fmt.Println("  *    /api/v1/keys/*       - Key operations")
	fmt.Println()
	fmt.Println("Use Ctrl+C to stop")
	fmt.Println()
}
