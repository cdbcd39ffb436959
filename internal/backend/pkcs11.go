//go:build cgo

// Package backend: PKCS#11 hardware adapter.
package backend

import (
	"bytes"
	"context"
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/miekg/pkcs11"

	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

// PKCS11 delegates key material operations to a hardware token through
// a PKCS#11 module. Every key is a token object pair identified by a
// random CKA_ID; the adapter handle is the hex encoding of that ID.
type PKCS11 struct {
	cfg  *HSMConfig
	pool *SessionPool
}

var _ Adapter = (*PKCS11)(nil)

const keyLabel = "webcrypto"

// NewPKCS11 opens a session pool against the configured PKCS#11 module.
func NewPKCS11(cfg *HSMConfig) (*PKCS11, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pin, err := cfg.GetPIN()
	if err != nil {
		return nil, err
	}

	slotID, err := findSlotID(cfg.PKCS11)
	if err != nil {
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	pool, err := GetSessionPool(cfg.PKCS11.Lib, slotID, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to get session pool: %w", err)
	}

	return &PKCS11{cfg: cfg, pool: pool}, nil
}

// Close releases the underlying session pool.
func (p *PKCS11) Close() error {
	return p.pool.Close()
}

// findSlotID resolves the slot for the configured token.
func findSlotID(settings PKCS11Settings) (uint, error) {
	if settings.Slot != nil {
		return *settings.Slot, nil
	}

	// Need to query the module for the slot - use a temporary context.
	ctx := pkcs11.New(settings.Lib)
	if ctx == nil {
		return 0, fmt.Errorf("failed to load PKCS#11 module: %s", settings.Lib)
	}
	defer ctx.Destroy()

	if err := ctx.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			return 0, fmt.Errorf("failed to initialize: %w", err)
		}
	}
	// NOTE: Do NOT call ctx.Finalize() here.
	// C_Finalize is a global operation that would affect all PKCS#11
	// users in the process. The context is destroyed but the module
	// remains initialized for other users.

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot list: %w", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("no slots with tokens found")
	}

	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if settings.Token != "" && info.Label == settings.Token {
			return slot, nil
		}
		if settings.TokenSerial != "" && info.SerialNumber == settings.TokenSerial {
			return slot, nil
		}
	}

	if settings.Token != "" {
		return 0, fmt.Errorf("token with label %q not found", settings.Token)
	}
	if settings.TokenSerial != "" {
		return 0, fmt.Errorf("token with serial %q not found", settings.TokenSerial)
	}

	return slots[0], nil
}

// Generate creates a key pair on the token and returns its handle.
func (p *PKCS11) Generate(ctx context.Context, alg wcrypto.AlgorithmID, extractable bool) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u := uuid.New()
	keyID := u[:]

	session, release, err := p.pool.Acquire()
	if err != nil {
		return "", fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	switch alg {
	case wcrypto.AlgECDSAP256, wcrypto.AlgECDSAP384, wcrypto.AlgECDSAP521:
		err = p.generateECKeyPair(session, keyID, alg, extractable)
	case wcrypto.AlgRSA2048, wcrypto.AlgRSA4096:
		err = p.generateRSAKeyPair(session, keyID, alg, extractable)
	default:
		return "", fmt.Errorf("algorithm %s is not supported by the PKCS#11 backend", alg)
	}
	if err != nil {
		return "", err
	}

	return Handle(hex.EncodeToString(keyID)), nil
}

// generateECKeyPair generates an ECDSA key pair on the token.
func (p *PKCS11) generateECKeyPair(session pkcs11.SessionHandle, keyID []byte, alg wcrypto.AlgorithmID, extractable bool) error {
	ecParams, err := curveOID(alg)
	if err != nil {
		return err
	}

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, ecParams),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}

	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, !extractable),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, extractable),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)}
	if _, _, err := p.pool.Context().GenerateKeyPair(session, mech, pubTemplate, privTemplate); err != nil {
		return fmt.Errorf("failed to generate EC key pair: %w", err)
	}
	return nil
}

// generateRSAKeyPair generates an RSA key pair on the token.
func (p *PKCS11) generateRSAKeyPair(session pkcs11.SessionHandle, keyID []byte, alg wcrypto.AlgorithmID, extractable bool) error {
	var bits int
	switch alg {
	case wcrypto.AlgRSA2048:
		bits = 2048
	case wcrypto.AlgRSA4096:
		bits = 4096
	default:
		return fmt.Errorf("unsupported RSA algorithm: %s", alg)
	}

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, bits),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}

	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, !extractable),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, extractable),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)}
	if _, _, err := p.pool.Context().GenerateKeyPair(session, mech, pubTemplate, privTemplate); err != nil {
		return fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return nil
}

// Sign signs the message with the token-resident private key.
func (p *PKCS11) Sign(ctx context.Context, h Handle, params SignParams, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keyID, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid handle: %w", err)
	}

	session, release, err := p.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	pctx := p.pool.Context()

	privHandle, err := findObject(pctx, session, keyID, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return nil, err
	}

	pub, alg, err := extractPublicKey(pctx, session, keyID)
	if err != nil {
		return nil, err
	}

	hash := params.Hash
	if hash == "" {
		hash = alg.DefaultHash()
	}
	hashFunc, err := hash.Func()
	if err != nil {
		return nil, err
	}
	digest, err := hash.Digest(message)
	if err != nil {
		return nil, err
	}

	var mech *pkcs11.Mechanism
	dataToSign := digest
	switch pub.(type) {
	case *ecdsa.PublicKey:
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	case *rsa.PublicKey:
		// CKM_RSA_PKCS requires the DigestInfo prefix (PKCS#1 v1.5)
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
		dataToSign = addDigestInfoPrefix(digest, hashFunc)
	default:
		return nil, fmt.Errorf("unsupported key type for signing")
	}

	if err := pctx.SignInit(session, []*pkcs11.Mechanism{mech}, privHandle); err != nil {
		return nil, fmt.Errorf("failed to init sign: %w", err)
	}

	sig, err := pctx.Sign(session, dataToSign)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// For ECDSA, convert raw signature (r||s) to ASN.1 DER format
	if _, ok := pub.(*ecdsa.PublicKey); ok {
		sig, err = convertECDSASignature(sig)
		if err != nil {
			return nil, err
		}
	}

	return sig, nil
}

// Verify checks the signature against the token key's public half.
// Verification needs no private material, so it runs in software
// against the extracted public key.
func (p *PKCS11) Verify(ctx context.Context, h Handle, params SignParams, signature, message []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	pub, alg, err := p.publicKey(h)
	if err != nil {
		return false, err
	}

	return wcrypto.VerifyMessage(alg, pub, params.Hash, message, signature)
}

// Public returns the public half of the token-resident key pair.
func (p *PKCS11) Public(ctx context.Context, h Handle) (stdcrypto.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pub, _, err := p.publicKey(h)
	return pub, err
}

func (p *PKCS11) publicKey(h Handle) (stdcrypto.PublicKey, wcrypto.AlgorithmID, error) {
	keyID, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, "", fmt.Errorf("invalid handle: %w", err)
	}

	session, release, err := p.pool.Acquire()
	if err != nil {
		return nil, "", fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	return extractPublicKey(p.pool.Context(), session, keyID)
}

// Purge destroys both halves of the key pair on the token.
func (p *PKCS11) Purge(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keyID, err := hex.DecodeString(string(h))
	if err != nil {
		return fmt.Errorf("invalid handle: %w", err)
	}

	session, release, err := p.pool.Acquire()
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	pctx := p.pool.Context()

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}
	if err := pctx.FindObjectsInit(session, template); err != nil {
		return fmt.Errorf("failed to init find objects: %w", err)
	}
	objs, _, err := pctx.FindObjects(session, 8)
	_ = pctx.FindObjectsFinal(session)
	if err != nil {
		return fmt.Errorf("failed to find objects: %w", err)
	}
	if len(objs) == 0 {
		return fmt.Errorf("key not found on token")
	}

	for _, obj := range objs {
		if err := pctx.DestroyObject(session, obj); err != nil {
			return fmt.Errorf("failed to destroy object: %w", err)
		}
	}
	return nil
}

// findObject locates a single object by CKA_ID and class.
func findObject(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyID []byte, class uint) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("failed to init find objects: %w", err)
	}
	defer func() { _ = ctx.FindObjectsFinal(session) }()

	objs, _, err := ctx.FindObjects(session, 2)
	if err != nil {
		return 0, fmt.Errorf("failed to find objects: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("key not found on token")
	}
	if len(objs) > 1 {
		return 0, fmt.Errorf("multiple keys found for the same id")
	}

	return objs[0], nil
}

// extractPublicKey reads the public key object matching the key ID.
func extractPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyID []byte) (stdcrypto.PublicKey, wcrypto.AlgorithmID, error) {
	pubHandle, err := findObject(ctx, session, keyID, pkcs11.CKO_PUBLIC_KEY)
	if err != nil {
		return nil, "", err
	}

	attrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get key type: %w", err)
	}

	switch bytesToUint(attrs[0].Value) {
	case pkcs11.CKK_EC:
		return extractECPublicKey(ctx, session, pubHandle)
	case pkcs11.CKK_RSA:
		return extractRSAPublicKey(ctx, session, pubHandle)
	default:
		return nil, "", fmt.Errorf("unsupported key type: 0x%X", bytesToUint(attrs[0].Value))
	}
}

// extractECPublicKey reads an ECDSA public key from the token.
func extractECPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, pubHandle pkcs11.ObjectHandle) (stdcrypto.PublicKey, wcrypto.AlgorithmID, error) {
	attrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get EC attributes: %w", err)
	}

	curve, algID, err := parseECParams(attrs[0].Value)
	if err != nil {
		return nil, "", err
	}

	point := attrs[1].Value
	// Unwrap the DER OCTET STRING if present.
	// Content is the uncompressed EC point: 0x04 || X || Y.
	if len(point) > 2 && point[0] == 0x04 {
		length := int(point[1])
		if length < 128 {
			if len(point) >= 2+length && point[2] == 0x04 {
				point = point[2 : 2+length]
			}
		} else if length == 0x81 && len(point) > 3 {
			actualLen := int(point[2])
			if len(point) >= 3+actualLen && point[3] == 0x04 {
				point = point[3 : 3+actualLen]
			}
		}
	}

	//nolint:staticcheck // elliptic.Unmarshal is deprecated for ECDH but we need ECDSA
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return nil, "", fmt.Errorf("failed to unmarshal EC point")
	}

	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, algID, nil
}

// extractRSAPublicKey reads an RSA public key from the token.
func extractRSAPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, pubHandle pkcs11.ObjectHandle) (stdcrypto.PublicKey, wcrypto.AlgorithmID, error) {
	attrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get RSA attributes: %w", err)
	}

	n := new(big.Int).SetBytes(attrs[0].Value)
	// RSA public exponent is a big integer (big-endian), not CK_ULONG
	e := int(new(big.Int).SetBytes(attrs[1].Value).Int64())

	algID := wcrypto.AlgRSA2048
	if n.BitLen() > 2048 {
		algID = wcrypto.AlgRSA4096
	}

	return &rsa.PublicKey{N: n, E: e}, algID, nil
}

// curveOID maps an EC algorithm to its DER-encoded curve OID.
func curveOID(alg wcrypto.AlgorithmID) ([]byte, error) {
	switch alg {
	case wcrypto.AlgECDSAP256:
		// OID 1.2.840.10045.3.1.7 (P-256)
		return []byte{0x06, 0x08, 0x2A, 0x86, 0x48, 0xCE, 0x3D, 0x03, 0x01, 0x07}, nil
	case wcrypto.AlgECDSAP384:
		// OID 1.3.132.0.34 (P-384)
		return []byte{0x06, 0x05, 0x2B, 0x81, 0x04, 0x00, 0x22}, nil
	case wcrypto.AlgECDSAP521:
		// OID 1.3.132.0.35 (P-521)
		return []byte{0x06, 0x05, 0x2B, 0x81, 0x04, 0x00, 0x23}, nil
	default:
		return nil, fmt.Errorf("unsupported EC algorithm: %s", alg)
	}
}

// parseECParams maps a DER-encoded curve OID back to the curve.
func parseECParams(params []byte) (elliptic.Curve, wcrypto.AlgorithmID, error) {
	switch {
	case bytes.Equal(params, []byte{0x06, 0x08, 0x2A, 0x86, 0x48, 0xCE, 0x3D, 0x03, 0x01, 0x07}):
		return elliptic.P256(), wcrypto.AlgECDSAP256, nil
	case bytes.Equal(params, []byte{0x06, 0x05, 0x2B, 0x81, 0x04, 0x00, 0x22}):
		return elliptic.P384(), wcrypto.AlgECDSAP384, nil
	case bytes.Equal(params, []byte{0x06, 0x05, 0x2B, 0x81, 0x04, 0x00, 0x23}):
		return elliptic.P521(), wcrypto.AlgECDSAP521, nil
	default:
		return nil, "", fmt.Errorf("unsupported curve parameters: %s", hex.EncodeToString(params))
	}
}

// DigestInfo prefixes for PKCS#1 v1.5 signatures (RFC 8017)
var digestInfoPrefixes = map[stdcrypto.Hash][]byte{
	stdcrypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	stdcrypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	stdcrypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// addDigestInfoPrefix adds the DigestInfo ASN.1 prefix for PKCS#1 v1.5 RSA signatures.
func addDigestInfoPrefix(digest []byte, hash stdcrypto.Hash) []byte {
	prefix, ok := digestInfoPrefixes[hash]
	if !ok {
		// Unknown hash, return digest as-is (will likely fail verification)
		return digest
	}
	result := make([]byte, len(prefix)+len(digest))
	copy(result, prefix)
	copy(result[len(prefix):], digest)
	return result
}

// convertECDSASignature converts raw ECDSA signature (r||s) to ASN.1 DER format.
func convertECDSASignature(rawSig []byte) ([]byte, error) {
	if len(rawSig)%2 != 0 {
		return nil, fmt.Errorf("invalid ECDSA signature length")
	}

	n := len(rawSig) / 2
	r := new(big.Int).SetBytes(rawSig[:n])
	s := new(big.Int).SetBytes(rawSig[n:])

	return asn1.Marshal(struct {
		R, S *big.Int
	}{r, s})
}
