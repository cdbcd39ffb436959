package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/audit"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Key management commands",
	Long:  `Commands for generating and managing origin-bound signing keys.`,
}

// Flags shared by all key subcommands
var (
	keyStateDir  string
	keyBackend   string
	keyHSMConfig string
	keyAuditLog  string
	keyOrigin    string
)

// Per-command flags
var (
	keyGenAlgorithm   string
	keyGenIdentifier  string
	keyGenOrigins     []string
	keyGenUsages      []string
	keyGenHardware    bool
	keyGenExtractable bool
	keyGenFrozen      bool

	keySignIn   string
	keySignOut  string
	keySignHash string

	keyVerifyIn  string
	keyVerifySig string

	keyUpdateRename     string
	keyUpdateAddOrigins []string
	keyUpdateFreeze     bool
)

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a signing key pair",
	Long: `Generate a new signing key pair bound to an origin.

The private key never leaves the backend. The record is stored under
the state directory and the key becomes usable by every origin in its
binding set.

Supported algorithms:
  Classical:
    ecdsa-p256   - ECDSA with P-256 curve (default)
    ecdsa-p384   - ECDSA with P-384 curve
    ecdsa-p521   - ECDSA with P-521 curve
    ed25519      - Ed25519 (EdDSA)
    rsa-2048     - RSA 2048-bit
    rsa-4096     - RSA 4096-bit

  Post-Quantum (software backend only):
    ml-dsa-44    - ML-DSA-44 (NIST Level 1)
    ml-dsa-65    - ML-DSA-65 (NIST Level 3)
    ml-dsa-87    - ML-DSA-87 (NIST Level 5)

Examples:
  # Generate a key for one origin
  webcrypto key gen --algorithm ecdsa-p384 --identifier login-key \
      --origin https://app.example

  # Bind additional origins at creation
  webcrypto key gen --identifier shared-key --origin https://app.example \
      --bind-origin https://admin.example

  # Generate in an HSM
  export HSM_PIN="****"
  webcrypto key gen --backend pkcs11 --hsm-config ./hsm.yaml \
      --identifier hsm-key --origin https://app.example --hardware-bound`,
	RunE: runKeyGen,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List key records",
	Long: `List all active key records in the state directory.

Shows identifier, algorithm and origin bindings for every key.`,
	RunE: runKeyList,
}

var keyInfoCmd = &cobra.Command{
	Use:   "info <identifier>",
	Short: "Display information about a key",
	Long: `Display the full record behind a key identifier.

The calling origin must be bound to the key.

Examples:
  webcrypto key info login-key --origin https://app.example`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyInfo,
}

var keySignCmd = &cobra.Command{
	Use:   "sign <identifier>",
	Short: "Sign a file with a key",
	Long: `Sign the contents of a file with the key behind an identifier.

The signature is written as raw bytes. ECDSA signatures are ASN.1 DER,
RSA signatures are PKCS#1 v1.5, Ed25519 and ML-DSA are their native
encodings.

Examples:
  webcrypto key sign login-key --origin https://app.example \
      --in msg.bin --out msg.sig`,
	Args: cobra.ExactArgs(1),
	RunE: runKeySign,
}

var keyVerifyCmd = &cobra.Command{
	Use:   "verify <identifier>",
	Short: "Verify a signature with a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyVerify,
}

var keyUpdateCmd = &cobra.Command{
	Use:   "update <identifier>",
	Short: "Update a key's bindings",
	Long: `Rename a key, grow its origin set, or freeze it.

Origins can only be added, never removed. Freezing is permanent: a
frozen key rejects every later update, including attempts to unfreeze.

Examples:
  # Rename
  webcrypto key update login-key --origin https://app.example \
      --rename session-key

  # Add an origin
  webcrypto key update login-key --origin https://app.example \
      --add-origin https://admin.example

  # Freeze
  webcrypto key update login-key --origin https://app.example --freeze`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyUpdate,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <identifier>",
	Short: "Delete a key and destroy its backend material",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyDelete,
}

func init() {
	keyCmd.PersistentFlags().StringVar(&keyStateDir, "state-dir", "./webcrypto-state",
		"State directory for records and keystore")
	keyCmd.PersistentFlags().StringVar(&keyBackend, "backend", "software",
		"Key backend: software or pkcs11")
	keyCmd.PersistentFlags().StringVar(&keyHSMConfig, "hsm-config", "",
		"Path to PKCS#11 config file (backend pkcs11)")
	keyCmd.PersistentFlags().StringVar(&keyAuditLog, "audit-log", "",
		"Path to audit log file (or set WEBCRYPTO_AUDIT_LOG)")
	keyCmd.PersistentFlags().StringVar(&keyOrigin, "origin", "",
		"Web origin performing the operation (required)")

	keyGenCmd.Flags().StringVar(&keyGenAlgorithm, "algorithm", "ecdsa-p256", "Key algorithm")
	keyGenCmd.Flags().StringVar(&keyGenIdentifier, "identifier", "", "Key identifier (generated when empty)")
	keyGenCmd.Flags().StringSliceVar(&keyGenOrigins, "bind-origin", nil, "Additional origin to bind (repeatable)")
	keyGenCmd.Flags().StringSliceVar(&keyGenUsages, "usage", []string{"sign", "verify"}, "Allowed usages")
	keyGenCmd.Flags().BoolVar(&keyGenHardware, "hardware-bound", false, "Require hardware-resident key material")
	keyGenCmd.Flags().BoolVar(&keyGenExtractable, "extractable", false, "Allow later export of private material")
	keyGenCmd.Flags().BoolVar(&keyGenFrozen, "frozen", false, "Create the key with updates disabled")

	keySignCmd.Flags().StringVar(&keySignIn, "in", "", "File to sign (required)")
	_ = keySignCmd.MarkFlagRequired("in")
	keySignCmd.Flags().StringVar(&keySignOut, "out", "", "Signature output file (default: stdout as base64)")
	keySignCmd.Flags().StringVar(&keySignHash, "hash", "", "Digest override: sha-256, sha-384, sha-512")

	keyVerifyCmd.Flags().StringVar(&keyVerifyIn, "in", "", "Signed file (required)")
	_ = keyVerifyCmd.MarkFlagRequired("in")
	keyVerifyCmd.Flags().StringVar(&keyVerifySig, "sig", "", "Signature file (required)")
	_ = keyVerifyCmd.MarkFlagRequired("sig")
	keyVerifyCmd.Flags().StringVar(&keySignHash, "hash", "", "Digest override: sha-256, sha-384, sha-512")

	keyUpdateCmd.Flags().StringVar(&keyUpdateRename, "rename", "", "New identifier")
	keyUpdateCmd.Flags().StringSliceVar(&keyUpdateAddOrigins, "add-origin", nil, "Origin to add (repeatable)")
	keyUpdateCmd.Flags().BoolVar(&keyUpdateFreeze, "freeze", false, "Permanently disable further updates")

	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyListCmd)
	keyCmd.AddCommand(keyInfoCmd)
	keyCmd.AddCommand(keySignCmd)
	keyCmd.AddCommand(keyVerifyCmd)
	keyCmd.AddCommand(keyUpdateCmd)
	keyCmd.AddCommand(keyDeleteCmd)
}

// openDispatcher builds the key machinery from the shared key flags.
func openDispatcher(ctx context.Context) (*webcrypto.Dispatcher, error) {
	var adapter backend.Adapter
	switch keyBackend {
	case "pkcs11":
		if keyHSMConfig == "" {
			return nil, fmt.Errorf("--hsm-config is required with --backend pkcs11")
		}
		cfg, err := backend.LoadHSMConfig(keyHSMConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load HSM config: %w", err)
		}
		adapter, err = backend.NewPKCS11(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open PKCS#11 backend: %w", err)
		}
	case "software":
		var passphrase []byte
		if v := os.Getenv("WEBCRYPTO_PASSPHRASE"); v != "" {
			passphrase = []byte(v)
		}
		adapter = backend.NewSoftware(filepath.Join(keyStateDir, "keystore"), passphrase)
	default:
		return nil, fmt.Errorf("unknown backend: %s", keyBackend)
	}

	var auditWriter audit.Writer = audit.NopWriter{}
	if keyAuditLog == "" {
		keyAuditLog = os.Getenv("WEBCRYPTO_AUDIT_LOG")
	}
	if keyAuditLog != "" {
		w, err := audit.NewFileWriter(keyAuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		auditWriter = w
	}

	store := webcrypto.NewFileStore(filepath.Join(keyStateDir, "registry"))
	registry, err := webcrypto.NewRegistry(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("failed to load key registry: %w", err)
	}

	return webcrypto.NewDispatcher(registry, adapter, auditWriter), nil
}

func requireOrigin() error {
	if keyOrigin == "" {
		return fmt.Errorf("--origin is required")
	}
	return nil
}

func runKeyGen(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}

	ctx := cmd.Context()
	dispatcher, err := openDispatcher(ctx)
	if err != nil {
		return err
	}

	usages := make([]wcrypto.KeyUsage, 0, len(keyGenUsages))
	for _, u := range keyGenUsages {
		usages = append(usages, wcrypto.KeyUsage(u))
	}

	updatable := !keyGenFrozen
	origins := append([]string{keyOrigin}, keyGenOrigins...)

	rec, err := dispatcher.GenerateKey(ctx, webcrypto.GenerateRequest{
		Algorithm: wcrypto.Descriptor{
			Algorithm: wcrypto.AlgorithmID(keyGenAlgorithm),
			Usages:    usages,
		},
		Binding: webcrypto.CreateBinding{
			Identifier:    keyGenIdentifier,
			Origins:       origins,
			HardwareBound: keyGenHardware,
			Extractable:   keyGenExtractable,
			Updatable:     &updatable,
		},
		CallerOrigin: keyOrigin,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Key generated\n")
	printRecord(rec)
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	dispatcher, err := openDispatcher(cmd.Context())
	if err != nil {
		return err
	}

	records := dispatcher.Registry().List()
	if len(records) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	fmt.Printf("Keys in %s:\n\n", keyStateDir)
	for _, rec := range records {
		fmt.Printf("  Identifier: %s\n", rec.Identifier)
		fmt.Printf("  Algorithm:  %s\n", rec.Algorithm.Algorithm)
		fmt.Printf("  Origins:    %v\n", rec.Origins)
		fmt.Println()
	}
	return nil
}

func runKeyInfo(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}

	dispatcher, err := openDispatcher(cmd.Context())
	if err != nil {
		return err
	}

	rec, err := dispatcher.Describe(args[0], keyOrigin)
	if err != nil {
		return err
	}
	printRecord(rec)
	return nil
}

func runKeySign(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}

	ctx := cmd.Context()
	dispatcher, err := openDispatcher(ctx)
	if err != nil {
		return err
	}

	message, err := os.ReadFile(keySignIn)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	hash, err := wcrypto.ParseHash(keySignHash)
	if err != nil {
		return err
	}

	sig, err := dispatcher.Sign(ctx, args[0], backend.SignParams{Hash: hash}, message, keyOrigin)
	if err != nil {
		return err
	}

	if keySignOut == "" {
		fmt.Println(base64.StdEncoding.EncodeToString(sig))
		return nil
	}
	if err := os.WriteFile(keySignOut, sig, 0644); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}
	fmt.Printf("Signature written to %s (%d bytes)\n", keySignOut, len(sig))
	return nil
}

func runKeyVerify(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}

	ctx := cmd.Context()
	dispatcher, err := openDispatcher(ctx)
	if err != nil {
		return err
	}

	message, err := os.ReadFile(keyVerifyIn)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	sig, err := os.ReadFile(keyVerifySig)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	hash, err := wcrypto.ParseHash(keySignHash)
	if err != nil {
		return err
	}

	ok, err := dispatcher.Verify(ctx, args[0], backend.SignParams{Hash: hash}, sig, message, keyOrigin)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Signature: INVALID")
		return fmt.Errorf("signature verification failed")
	}
	fmt.Println("Signature: VALID")
	return nil
}

func runKeyUpdate(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}
	if keyUpdateRename == "" && len(keyUpdateAddOrigins) == 0 && !keyUpdateFreeze {
		return fmt.Errorf("nothing to update: use --rename, --add-origin or --freeze")
	}

	ctx := cmd.Context()
	dispatcher, err := openDispatcher(ctx)
	if err != nil {
		return err
	}

	patch := webcrypto.UpdatePatch{}
	if keyUpdateRename != "" {
		patch.Identifier = &keyUpdateRename
	}
	if len(keyUpdateAddOrigins) > 0 {
		// Origin sets only grow, so the patch carries current plus new.
		rec, err := dispatcher.Describe(args[0], keyOrigin)
		if err != nil {
			return err
		}
		patch.Origins = append(rec.Origins, keyUpdateAddOrigins...)
	}
	if keyUpdateFreeze {
		frozen := false
		patch.Updatable = &frozen
	}

	rec, err := dispatcher.UpdateKey(ctx, args[0], patch, keyOrigin)
	if err != nil {
		return err
	}

	fmt.Printf("Key updated\n")
	printRecord(rec)
	return nil
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	if err := requireOrigin(); err != nil {
		return err
	}

	ctx := cmd.Context()
	dispatcher, err := openDispatcher(ctx)
	if err != nil {
		return err
	}

	if err := dispatcher.DeleteKey(ctx, args[0], keyOrigin); err != nil {
		return err
	}
	fmt.Printf("Key %q deleted\n", args[0])
	return nil
}

func printRecord(rec *webcrypto.KeyRecord) {
	fmt.Printf("  Identifier:     %s\n", rec.Identifier)
	fmt.Printf("  Algorithm:      %s\n", rec.Algorithm.Algorithm)
	fmt.Printf("  Usages:         %v\n", rec.Algorithm.Usages)
	fmt.Printf("  Origins:        %v\n", rec.Origins)
	fmt.Printf("  Creator:        %s\n", rec.CreatorOrigin)
	fmt.Printf("  Hardware-bound: %v\n", rec.HardwareBound)
	fmt.Printf("  Extractable:    %v\n", rec.Extractable)
	fmt.Printf("  Updatable:      %v\n", rec.Updatable)
	fmt.Printf("  Created:        %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
}
