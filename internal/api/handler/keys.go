package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/dto"
	apierrors "github.com/brave-experiments/hardware-backed-webcrypto/internal/api/errors"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/service"
)

// KeyHandler handles key-related HTTP requests. Every operation is
// performed on behalf of the web origin carried in the Origin header.
type KeyHandler struct {
	service *service.KeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keyService *service.KeyService) *KeyHandler {
	return &KeyHandler{service: keyService}
}

// Generate handles POST /api/v1/keys/generate
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrigin(w, r)
	if !ok {
		return
	}

	var req dto.GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	resp, err := h.service.Generate(r.Context(), &req, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrigin(w, r)
	if !ok {
		return
	}

	resp, err := h.service.List(caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/keys/{identifier}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Get(identifier, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Update handles POST /api/v1/keys/{identifier}/update
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	var req dto.UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	resp, err := h.service.Update(r.Context(), identifier, &req, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Sign handles POST /api/v1/keys/{identifier}/sign
func (h *KeyHandler) Sign(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	var req dto.SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	resp, err := h.service.Sign(r.Context(), identifier, &req, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Verify handles POST /api/v1/keys/{identifier}/verify
func (h *KeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	resp, err := h.service.Verify(r.Context(), identifier, &req, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Public handles GET /api/v1/keys/{identifier}/public
func (h *KeyHandler) Public(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Public(r.Context(), identifier, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/keys/{identifier}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, identifier, ok := callerAndIdentifier(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Delete(r.Context(), identifier, caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// callerOrigin extracts the calling origin from the Origin header.
func callerOrigin(w http.ResponseWriter, r *http.Request) (string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Origin header is required"))
		return "", false
	}
	return origin, true
}

func callerAndIdentifier(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	caller, ok := callerOrigin(w, r)
	if !ok {
		return "", "", false
	}
	identifier := chi.URLParam(r, "identifier")
	if identifier == "" {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Key identifier is required"))
		return "", "", false
	}
	return caller, identifier, true
}

// handleServiceError maps a service error to an HTTP response.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}
