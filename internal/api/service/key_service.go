// Package service provides business logic for the REST API.
package service

import (
	"context"
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/dto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

// KeyService translates between API DTOs and the operation dispatcher.
type KeyService struct {
	dispatcher *webcrypto.Dispatcher
}

// NewKeyService creates a new KeyService.
func NewKeyService(dispatcher *webcrypto.Dispatcher) *KeyService {
	return &KeyService{dispatcher: dispatcher}
}

// Generate creates a new key for the calling origin.
func (s *KeyService) Generate(ctx context.Context, req *dto.GenerateKeyRequest, callerOrigin string) (*dto.KeyResponse, error) {
	usages := make([]wcrypto.KeyUsage, 0, len(req.Usages))
	for _, u := range req.Usages {
		usages = append(usages, wcrypto.KeyUsage(u))
	}

	rec, err := s.dispatcher.GenerateKey(ctx, webcrypto.GenerateRequest{
		Algorithm: wcrypto.Descriptor{
			Algorithm: wcrypto.AlgorithmID(req.Algorithm),
			Usages:    usages,
		},
		Binding: webcrypto.CreateBinding{
			Identifier:    req.Identifier,
			Origins:       req.Origins,
			HardwareBound: req.HardwareBound,
			Extractable:   req.Extractable,
			Updatable:     req.Updatable,
		},
		CallerOrigin: callerOrigin,
	})
	if err != nil {
		return nil, err
	}
	return keyResponse(rec), nil
}

// Get returns the record behind an identifier for an authorized origin.
func (s *KeyService) Get(identifier, callerOrigin string) (*dto.KeyResponse, error) {
	rec, err := s.dispatcher.Describe(identifier, callerOrigin)
	if err != nil {
		return nil, err
	}
	return keyResponse(rec), nil
}

// Update applies a patch to an existing key.
func (s *KeyService) Update(ctx context.Context, identifier string, req *dto.UpdateKeyRequest, callerOrigin string) (*dto.KeyResponse, error) {
	rec, err := s.dispatcher.UpdateKey(ctx, identifier, webcrypto.UpdatePatch{
		Identifier: req.Identifier,
		Origins:    req.Origins,
		Updatable:  req.Updatable,
	}, callerOrigin)
	if err != nil {
		return nil, err
	}
	return keyResponse(rec), nil
}

// Sign signs a message with the key behind the identifier.
func (s *KeyService) Sign(ctx context.Context, identifier string, req *dto.SignRequest, callerOrigin string) (*dto.SignResponse, error) {
	message, err := req.Message.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", webcrypto.ErrInvalidBinding, err)
	}
	hash, err := wcrypto.ParseHash(req.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webcrypto.ErrInvalidBinding, err)
	}

	sig, err := s.dispatcher.Sign(ctx, identifier, backend.SignParams{Hash: hash}, message, callerOrigin)
	if err != nil {
		return nil, err
	}

	rec, err := s.dispatcher.Describe(identifier, callerOrigin)
	if err != nil {
		return nil, err
	}

	return &dto.SignResponse{
		Signature: dto.NewBase64(sig),
		Algorithm: algorithmInfo(rec.Algorithm.Algorithm),
	}, nil
}

// Verify checks a signature with the key behind the identifier.
func (s *KeyService) Verify(ctx context.Context, identifier string, req *dto.VerifyRequest, callerOrigin string) (*dto.VerifyResponse, error) {
	message, err := req.Message.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", webcrypto.ErrInvalidBinding, err)
	}
	signature, err := req.Signature.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", webcrypto.ErrInvalidBinding, err)
	}
	hash, err := wcrypto.ParseHash(req.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webcrypto.ErrInvalidBinding, err)
	}

	ok, err := s.dispatcher.Verify(ctx, identifier, backend.SignParams{Hash: hash}, signature, message, callerOrigin)
	if err != nil {
		return nil, err
	}

	return &dto.VerifyResponse{Valid: ok}, nil
}

// Public exports the public half of a key as a COSE_Key and as PEM.
func (s *KeyService) Public(ctx context.Context, identifier, callerOrigin string) (*dto.PublicKeyResponse, error) {
	pub, rec, err := s.dispatcher.ExportPublicKey(ctx, identifier, callerOrigin)
	if err != nil {
		return nil, err
	}

	coseKey, err := encodeCOSEKey(pub, rec.Algorithm.Algorithm)
	if err != nil {
		return nil, err
	}

	pemData, err := wcrypto.MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &dto.PublicKeyResponse{
		COSEKey:   dto.NewBase64(coseKey),
		PEM:       string(pemData),
		Algorithm: algorithmInfo(rec.Algorithm.Algorithm),
	}, nil
}

// Delete destroys a key and its backend material.
func (s *KeyService) Delete(ctx context.Context, identifier, callerOrigin string) (*dto.DeleteKeyResponse, error) {
	if err := s.dispatcher.DeleteKey(ctx, identifier, callerOrigin); err != nil {
		return nil, err
	}
	return &dto.DeleteKeyResponse{Identifier: identifier, Deleted: true}, nil
}

// List returns the keys the calling origin is bound to.
func (s *KeyService) List(callerOrigin string) (*dto.KeyListResponse, error) {
	resp := &dto.KeyListResponse{Keys: []dto.KeyResponse{}}
	for _, rec := range s.dispatcher.Registry().List() {
		if kr, err := s.Get(rec.Identifier, callerOrigin); err == nil {
			resp.Keys = append(resp.Keys, *kr)
		}
	}
	resp.Total = len(resp.Keys)
	return resp, nil
}

// COSE algorithm codes for ML-DSA (draft-ietf-cose-dilithium).
const (
	coseAlgMLDSA44 int64 = -48
	coseAlgMLDSA65 int64 = -49
	coseAlgMLDSA87 int64 = -50

	// COSE key type for algorithm key pairs (AKP).
	coseKtyAKP int64 = 7
)

// encodeCOSEKey encodes a public key as a CBOR COSE_Key (RFC 9052).
// Classical keys go through go-cose; ML-DSA keys use the AKP key type
// with the raw public key bytes.
func encodeCOSEKey(pub stdcrypto.PublicKey, alg wcrypto.AlgorithmID) ([]byte, error) {
	switch pub.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey, *rsa.PublicKey:
		key, err := gocose.NewKeyFromPublic(pub)
		if err != nil {
			return nil, fmt.Errorf("failed to build COSE key: %w", err)
		}
		return key.MarshalCBOR()
	}

	var algCode int64
	switch alg {
	case wcrypto.AlgMLDSA44:
		algCode = coseAlgMLDSA44
	case wcrypto.AlgMLDSA65:
		algCode = coseAlgMLDSA65
	case wcrypto.AlgMLDSA87:
		algCode = coseAlgMLDSA87
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}

	raw, err := wcrypto.RawPublicKey(pub)
	if err != nil {
		return nil, err
	}

	// COSE_Key map: 1=kty, 3=alg, -1=pub
	return cbor.Marshal(map[int64]any{
		1:  coseKtyAKP,
		3:  algCode,
		-1: raw,
	})
}

func keyResponse(rec *webcrypto.KeyRecord) *dto.KeyResponse {
	usages := make([]string, 0, len(rec.Algorithm.Usages))
	for _, u := range rec.Algorithm.Usages {
		usages = append(usages, string(u))
	}
	return &dto.KeyResponse{
		Identifier:    rec.Identifier,
		Algorithm:     string(rec.Algorithm.Algorithm),
		Usages:        usages,
		Origins:       rec.Origins,
		HardwareBound: rec.HardwareBound,
		Extractable:   rec.Extractable,
		Updatable:     rec.Updatable,
		CreatorOrigin: rec.CreatorOrigin,
		CreatedAt:     rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func algorithmInfo(alg wcrypto.AlgorithmID) dto.AlgorithmInfo {
	family := "classical"
	if alg.IsPQC() {
		family = "pqc"
	}
	return dto.AlgorithmInfo{
		ID:          string(alg),
		Family:      family,
		Description: alg.Description(),
	}
}
