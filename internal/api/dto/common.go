// Package dto provides Data Transfer Objects for the REST API.
package dto

import (
	"encoding/base64"
	"fmt"
)

// BinaryData represents binary data with encoding metadata.
type BinaryData struct {
	// Data is the encoded content (base64 or PEM).
	Data string `json:"data"`

	// Encoding specifies the encoding format: "base64" (default) or "pem".
	Encoding string `json:"encoding,omitempty"`
}

// NewBase64 wraps raw bytes as base64 BinaryData.
func NewBase64(raw []byte) BinaryData {
	return BinaryData{
		Data:     base64.StdEncoding.EncodeToString(raw),
		Encoding: "base64",
	}
}

// Decode decodes the binary data based on its encoding.
func (b *BinaryData) Decode() ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("binary data is nil")
	}
	switch b.Encoding {
	case "base64", "":
		return base64.StdEncoding.DecodeString(b.Data)
	case "pem":
		// PEM data is returned as-is (it's text)
		return []byte(b.Data), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", b.Encoding)
	}
}

// APIError represents a standardized error response.
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details provides additional context about the error.
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Status is "ok" or "degraded".
	Status string `json:"status"`

	// Version is the server version.
	Version string `json:"version"`

	// Backend names the active backend adapter ("software", "pkcs11").
	Backend string `json:"backend,omitempty"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	// Ready indicates if the server is ready to accept requests.
	Ready bool `json:"ready"`

	// Checks lists individual readiness checks.
	Checks map[string]bool `json:"checks,omitempty"`
}

// AlgorithmInfo describes a cryptographic algorithm.
type AlgorithmInfo struct {
	// ID is the algorithm identifier (e.g., "ml-dsa-65", "ecdsa-p384").
	ID string `json:"id"`

	// Family is the algorithm family: "classical" or "pqc".
	Family string `json:"family"`

	// Description provides additional information.
	Description string `json:"description,omitempty"`
}
