package main

import (
	"github.com/spf13/cobra"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/server"
)

// Serve command flags
var (
	serveConfigFile string
	servePort       int
	serveHost       string
	serveStateDir   string
	serveBackend    string
	serveHSMConfig  string
	serveAuditLog   string
	serveTLSCert    string
	serveTLSKey     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API server.

The server exposes key management and signing operations under
/api/v1/keys. Every request carries the calling web origin in the
Origin header; keys are only usable by origins they are bound to.

Configuration is resolved in order: defaults, then the YAML config
file, then WEBCRYPTO_* environment variables, then flags.

Environment variables:
  WEBCRYPTO_HOST        Host to bind to
  WEBCRYPTO_PORT        HTTP port
  WEBCRYPTO_STATE_DIR   State directory (records and keystore)
  WEBCRYPTO_BACKEND     Backend: software or pkcs11
  WEBCRYPTO_HSM_CONFIG  PKCS#11 config file
  WEBCRYPTO_AUDIT_LOG   Audit log path
  WEBCRYPTO_PASSPHRASE  Software keystore passphrase

Examples:
  # Software backend with an encrypted keystore
  export WEBCRYPTO_PASSPHRASE="****"
  webcrypto serve --port 8443 --state-dir ./state

  # PKCS#11 backend
  export HSM_PIN="****"
  webcrypto serve --backend pkcs11 --hsm-config ./hsm.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to YAML config file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: 8443)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "State directory for records and keystore")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Key backend: software or pkcs11")
	serveCmd.Flags().StringVar(&serveHSMConfig, "hsm-config", "", "Path to PKCS#11 config file")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log file")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := server.LoadConfig(serveConfigFile)
	if err != nil {
		return err
	}

	// Flags override file and environment
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if serveStateDir != "" {
		cfg.StateDir = serveStateDir
	}
	if serveBackend != "" {
		cfg.Backend = serveBackend
	}
	if serveHSMConfig != "" {
		cfg.HSMConfig = serveHSMConfig
	}
	if serveAuditLog != "" {
		cfg.AuditLog = serveAuditLog
	}
	if serveTLSCert != "" {
		cfg.TLSCert = serveTLSCert
	}
	if serveTLSKey != "" {
		cfg.TLSKey = serveTLSKey
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return server.New(cfg, version).Start()
}
