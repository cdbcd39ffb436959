package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/dto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/router"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

const testOrigin = "https://app.example"

// newTestServer builds a full API stack over an in-memory registry and
// a software backend in a temp directory.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	registry, err := webcrypto.NewRegistry(context.Background(), webcrypto.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	adapter := backend.NewSoftware(t.TempDir(), nil)
	dispatcher := webcrypto.NewDispatcher(registry, adapter, nil)

	srv := httptest.NewServer(router.New(&router.Config{
		Version: "test",
		Backend: "software",
	}, dispatcher))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON performs a request with an Origin header and decodes the
// response body into out when non-nil.
func doJSON(t *testing.T, srv *httptest.Server, method, path, origin string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func generateTestKey(t *testing.T, srv *httptest.Server, identifier string) dto.KeyResponse {
	t.Helper()

	var key dto.KeyResponse
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/generate", testOrigin, dto.GenerateKeyRequest{
		Algorithm:  "ecdsa-p256",
		Usages:     []string{"sign", "verify"},
		Identifier: identifier,
	}, &key)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate returned status %d", resp.StatusCode)
	}
	return key
}

// =============================================================================
// Key Lifecycle Tests
// =============================================================================

// TestU_API_GenerateAndGet tests key creation and retrieval.
func TestU_API_GenerateAndGet(t *testing.T) {
	srv := newTestServer(t)

	key := generateTestKey(t, srv, "login-key")
	if key.Identifier != "login-key" {
		t.Errorf("Expected identifier login-key, got %s", key.Identifier)
	}
	if key.CreatorOrigin != testOrigin {
		t.Errorf("Expected creator %s, got %s", testOrigin, key.CreatorOrigin)
	}
	if !key.Updatable {
		t.Error("Expected key to default to updatable")
	}

	var got dto.KeyResponse
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/keys/login-key", testOrigin, nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get returned status %d", resp.StatusCode)
	}
	if got.Algorithm != "ecdsa-p256" {
		t.Errorf("Expected algorithm ecdsa-p256, got %s", got.Algorithm)
	}
}

// TestU_API_MissingOrigin tests that requests without an Origin header
// are rejected before touching the registry.
func TestU_API_MissingOrigin(t *testing.T) {
	srv := newTestServer(t)

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/keys/anything", "", nil, &apiErr)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if apiErr.Code != "INVALID_REQUEST" {
		t.Errorf("Expected INVALID_REQUEST, got %s", apiErr.Code)
	}
}

// TestU_API_UnauthorizedOrigin tests that an unbound origin gets 403.
func TestU_API_UnauthorizedOrigin(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "private-key")

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/keys/private-key", "https://evil.example", nil, &apiErr)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", resp.StatusCode)
	}
	if apiErr.Code != "ORIGIN_UNAUTHORIZED" {
		t.Errorf("Expected ORIGIN_UNAUTHORIZED, got %s", apiErr.Code)
	}
}

// TestU_API_NotFound tests the unknown-identifier response.
func TestU_API_NotFound(t *testing.T) {
	srv := newTestServer(t)

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/keys/missing", testOrigin, nil, &apiErr)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if apiErr.Code != "KEY_NOT_FOUND" {
		t.Errorf("Expected KEY_NOT_FOUND, got %s", apiErr.Code)
	}
}

// TestU_API_GenerateConflict tests that a taken identifier returns 409.
func TestU_API_GenerateConflict(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "taken")

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/generate", testOrigin, dto.GenerateKeyRequest{
		Algorithm:  "ecdsa-p256",
		Usages:     []string{"sign"},
		Identifier: "taken",
	}, &apiErr)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
	if apiErr.Code != "IDENTIFIER_CONFLICT" {
		t.Errorf("Expected IDENTIFIER_CONFLICT, got %s", apiErr.Code)
	}
}

// TestU_API_GenerateInvalidAlgorithm tests rejection of unknown algorithms.
func TestU_API_GenerateInvalidAlgorithm(t *testing.T) {
	srv := newTestServer(t)

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/generate", testOrigin, dto.GenerateKeyRequest{
		Algorithm: "rot13",
		Usages:    []string{"sign"},
	}, &apiErr)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if apiErr.Code != "INVALID_BINDING" {
		t.Errorf("Expected INVALID_BINDING, got %s", apiErr.Code)
	}
}

// =============================================================================
// Sign / Verify Tests
// =============================================================================

// TestU_API_SignVerifyRoundTrip tests the full sign then verify flow.
func TestU_API_SignVerifyRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "signer")

	message := dto.NewBase64([]byte("hello webcrypto"))

	var signResp dto.SignResponse
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/signer/sign", testOrigin,
		dto.SignRequest{Message: message}, &signResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign returned status %d", resp.StatusCode)
	}
	if signResp.Signature.Data == "" {
		t.Fatal("Expected a signature")
	}

	var verifyResp dto.VerifyResponse
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/signer/verify", testOrigin,
		dto.VerifyRequest{Message: message, Signature: signResp.Signature}, &verifyResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify returned status %d", resp.StatusCode)
	}
	if !verifyResp.Valid {
		t.Error("Expected signature to verify")
	}

	// Tampered message must fail cleanly, not error
	tampered := dto.NewBase64([]byte("hello Webcrypto"))
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/signer/verify", testOrigin,
		dto.VerifyRequest{Message: tampered, Signature: signResp.Signature}, &verifyResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify returned status %d", resp.StatusCode)
	}
	if verifyResp.Valid {
		t.Error("Expected tampered message to fail verification")
	}
}

// TestU_API_SignBadMessage tests rejection of undecodable input.
func TestU_API_SignBadMessage(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "signer")

	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/signer/sign", testOrigin,
		dto.SignRequest{Message: dto.BinaryData{Data: "not!!base64", Encoding: "base64"}}, &apiErr)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

// =============================================================================
// Update / Delete Tests
// =============================================================================

// TestU_API_UpdateRenameAndFreeze tests rename, origin growth and the
// one-way freeze over HTTP.
func TestU_API_UpdateRenameAndFreeze(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "old-name")

	newName := "new-name"
	var updated dto.KeyResponse
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/old-name/update", testOrigin,
		dto.UpdateKeyRequest{Identifier: &newName}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename returned status %d", resp.StatusCode)
	}
	if updated.Identifier != "new-name" {
		t.Errorf("Expected new-name, got %s", updated.Identifier)
	}

	// Old name is gone
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/keys/old-name", testOrigin, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for old name, got %d", resp.StatusCode)
	}

	// Grow the origin set
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/new-name/update", testOrigin,
		dto.UpdateKeyRequest{Origins: []string{testOrigin, "https://admin.example"}}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("origin growth returned status %d", resp.StatusCode)
	}
	if len(updated.Origins) != 2 {
		t.Errorf("Expected 2 origins, got %v", updated.Origins)
	}

	// Shrinking is rejected
	var apiErr dto.APIError
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/new-name/update", testOrigin,
		dto.UpdateKeyRequest{Origins: []string{testOrigin}}, &apiErr)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 for origin removal, got %d", resp.StatusCode)
	}

	// Freeze, then every further update is forbidden
	frozen := false
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/new-name/update", testOrigin,
		dto.UpdateKeyRequest{Updatable: &frozen}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("freeze returned status %d", resp.StatusCode)
	}
	if updated.Updatable {
		t.Error("Expected key to be frozen")
	}

	another := "third-name"
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/keys/new-name/update", testOrigin,
		dto.UpdateKeyRequest{Identifier: &another}, &apiErr)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected 403 after freeze, got %d", resp.StatusCode)
	}
	if apiErr.Code != "PERMISSION_DENIED" {
		t.Errorf("Expected PERMISSION_DENIED, got %s", apiErr.Code)
	}
}

// TestU_API_RenameConflict tests renaming onto a taken identifier.
func TestU_API_RenameConflict(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "first")
	generateTestKey(t, srv, "second")

	first := "first"
	var apiErr dto.APIError
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/second/update", testOrigin,
		dto.UpdateKeyRequest{Identifier: &first}, &apiErr)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
}

// TestU_API_DeleteThenRecreate tests that deletion frees the identifier.
func TestU_API_DeleteThenRecreate(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "ephemeral")

	var delResp dto.DeleteKeyResponse
	resp := doJSON(t, srv, http.MethodDelete, "/api/v1/keys/ephemeral", testOrigin, nil, &delResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete returned status %d", resp.StatusCode)
	}
	if !delResp.Deleted {
		t.Error("Expected deleted=true")
	}

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/keys/ephemeral", testOrigin, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 after delete, got %d", resp.StatusCode)
	}

	// Identifier is free again
	generateTestKey(t, srv, "ephemeral")
}

// =============================================================================
// Public Key / List Tests
// =============================================================================

// TestU_API_PublicKeyExport tests COSE and PEM export.
func TestU_API_PublicKeyExport(t *testing.T) {
	srv := newTestServer(t)
	generateTestKey(t, srv, "exportable")

	var pubResp dto.PublicKeyResponse
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/keys/exportable/public", testOrigin, nil, &pubResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public returned status %d", resp.StatusCode)
	}

	coseKey, err := base64.StdEncoding.DecodeString(pubResp.COSEKey.Data)
	if err != nil || len(coseKey) == 0 {
		t.Errorf("Expected CBOR COSE_Key bytes, got %q (%v)", pubResp.COSEKey.Data, err)
	}
	if pubResp.PEM == "" {
		t.Error("Expected a PEM block")
	}
	if pubResp.Algorithm.ID != "ecdsa-p256" {
		t.Errorf("Expected algorithm ecdsa-p256, got %s", pubResp.Algorithm.ID)
	}
}

// TestU_API_ListScopedToOrigin tests that listing only shows keys the
// calling origin is bound to.
func TestU_API_ListScopedToOrigin(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		generateTestKey(t, srv, fmt.Sprintf("mine-%d", i))
	}

	// A key belonging to someone else
	other := "https://other.example"
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/keys/generate", other, dto.GenerateKeyRequest{
		Algorithm:  "ed25519",
		Usages:     []string{"sign"},
		Identifier: "theirs",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate returned status %d", resp.StatusCode)
	}

	var list dto.KeyListResponse
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/keys/", testOrigin, nil, &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned status %d", resp.StatusCode)
	}
	if list.Total != 3 {
		t.Errorf("Expected 3 keys, got %d", list.Total)
	}
	for _, k := range list.Keys {
		if k.Identifier == "theirs" {
			t.Error("List leaked a foreign key")
		}
	}
}

// TestU_API_Health tests the health endpoint.
func TestU_API_Health(t *testing.T) {
	srv := newTestServer(t)

	var health dto.HealthResponse
	resp := doJSON(t, srv, http.MethodGet, "/health", "", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned status %d", resp.StatusCode)
	}
	if health.Status != "ok" {
		t.Errorf("Expected status ok, got %s", health.Status)
	}
	if health.Backend != "software" {
		t.Errorf("Expected backend software, got %s", health.Backend)
	}
}
