package dto

// GenerateKeyRequest is the body of POST /api/v1/keys/generate.
// The caller origin comes from the Origin header, not the body.
type GenerateKeyRequest struct {
	// Algorithm is the key algorithm identifier.
	Algorithm string `json:"algorithm"`

	// Usages lists the allowed key usages ("sign", "verify").
	Usages []string `json:"usages"`

	// Identifier is the caller-chosen name. Generated when empty.
	Identifier string `json:"identifier,omitempty"`

	// Origins authorizes additional origins beyond the creator.
	Origins []string `json:"origins,omitempty"`

	// HardwareBound requests hardware-resident key material.
	HardwareBound bool `json:"hardware_bound,omitempty"`

	// Extractable allows later export of private material.
	Extractable bool `json:"extractable,omitempty"`

	// Updatable controls whether the record accepts updates.
	// Defaults to true when omitted.
	Updatable *bool `json:"updatable,omitempty"`
}

// UpdateKeyRequest is the body of POST /api/v1/keys/{identifier}/update.
// Omitted fields are left unchanged.
type UpdateKeyRequest struct {
	// Identifier renames the key when set.
	Identifier *string `json:"identifier,omitempty"`

	// Origins replaces the binding set; must include every current origin.
	Origins []string `json:"origins,omitempty"`

	// Updatable may only move from true to false.
	Updatable *bool `json:"updatable,omitempty"`
}

// KeyResponse describes a key record.
type KeyResponse struct {
	Identifier    string   `json:"identifier"`
	Algorithm     string   `json:"algorithm"`
	Usages        []string `json:"usages"`
	Origins       []string `json:"origins"`
	HardwareBound bool     `json:"hardware_bound"`
	Extractable   bool     `json:"extractable"`
	Updatable     bool     `json:"updatable"`
	CreatorOrigin string   `json:"creator_origin"`
	CreatedAt     string   `json:"created_at"` // RFC3339 UTC
}

// KeyListResponse is the body of GET /api/v1/keys.
type KeyListResponse struct {
	Keys  []KeyResponse `json:"keys"`
	Total int           `json:"total"`
}

// SignRequest is the body of POST /api/v1/keys/{identifier}/sign.
type SignRequest struct {
	// Message is the data to sign.
	Message BinaryData `json:"message"`

	// Hash overrides the algorithm's default digest ("sha-256",
	// "sha-384", "sha-512"). Rejected for ed25519 and ML-DSA.
	Hash string `json:"hash,omitempty"`
}

// SignResponse carries the produced signature.
type SignResponse struct {
	Signature BinaryData    `json:"signature"`
	Algorithm AlgorithmInfo `json:"algorithm"`
}

// VerifyRequest is the body of POST /api/v1/keys/{identifier}/verify.
type VerifyRequest struct {
	Message   BinaryData `json:"message"`
	Signature BinaryData `json:"signature"`
	Hash      string     `json:"hash,omitempty"`
}

// VerifyResponse carries the verification outcome. Valid is false for
// a well-formed request whose signature does not match.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// PublicKeyResponse is the body of GET /api/v1/keys/{identifier}/public.
type PublicKeyResponse struct {
	// COSEKey is the public key as a CBOR-encoded COSE_Key (RFC 9052).
	COSEKey BinaryData `json:"cose_key"`

	// PEM is the same key as a PEM block, for convenience.
	PEM string `json:"pem"`

	Algorithm AlgorithmInfo `json:"algorithm"`
}

// DeleteKeyResponse acknowledges a deletion.
type DeleteKeyResponse struct {
	Identifier string `json:"identifier"`
	Deleted    bool   `json:"deleted"`
}
