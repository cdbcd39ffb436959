// Command webcrypto manages origin-scoped signing keys held in a
// hardware or software backend.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Setup signal handler for clean PKCS#11 shutdown
	setupSignalHandler()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		backend.CloseAllPools() // Cleanup PKCS#11 before exit
		os.Exit(1)
	}

	// Cleanup PKCS#11 session pools on normal exit
	backend.CloseAllPools()
}

// setupSignalHandler sets up a signal handler to cleanup PKCS#11 resources
// on SIGINT/SIGTERM. This prevents SIGSEGV crashes during program exit when
// HSM sessions are active.
func setupSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		backend.CloseAllPools() // Cleanup PKCS#11 before exit
		os.Exit(0)
	}()
}

var rootCmd = &cobra.Command{
	Use:   "webcrypto",
	Short: "Hardware-backed WebCrypto key service",
	Long: `webcrypto manages signing keys on behalf of web origins.

Keys live in a pluggable backend (an encrypted software keystore or a
PKCS#11 HSM) and are referenced through stable identifiers. Every key
is bound to the set of origins allowed to use it; origins can be added
over time but never removed, and a key can be frozen so its bindings
never change again.

Supported algorithms:
  Classical: ECDSA (P-256, P-384, P-521), Ed25519, RSA (2048, 4096)
  PQC:       ML-DSA-44, ML-DSA-65, ML-DSA-87 (FIPS 204)

Examples:
  # Generate a key for an origin
  webcrypto key gen --algorithm ecdsa-p256 --identifier login-key \
      --origin https://app.example

  # Sign a file with it
  webcrypto key sign login-key --origin https://app.example \
      --in msg.bin --out msg.sig

  # Start the REST API
  webcrypto serve --port 8443`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(auditCmd)
}
