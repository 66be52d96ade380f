package dks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
)

// maxRequestSize bounds the decrypt request body
const maxRequestSize = 64 * 1024

// KeySource is what the service needs from a data key provider
type KeySource interface {
	datakey.Provider
	datakey.Decrypter
}

// Handler serves the data key service endpoints
type Handler struct {
	keys   KeySource
	logger *logrus.Entry
}

// NewHandler creates a handler issuing keys from keys
func NewHandler(keys KeySource, logger *logrus.Entry) *Handler {
	return &Handler{keys: keys, logger: logger}
}

type decryptResponse struct {
	KeyID        string `json:"dataKeyEncryptionKeyId"`
	PlaintextKey string `json:"plaintextDataKey"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GenerateDataKey handles GET /datakey
func (h *Handler) GenerateDataKey(w http.ResponseWriter, r *http.Request) {
	material, err := h.keys.FetchDataKey(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate data key")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to generate data key"})
		return
	}

	h.logger.WithField("keyId", material.KeyID).Debug("Issued data key")
	h.writeJSON(w, http.StatusCreated, material)
}

// DecryptDataKey handles POST /datakey/actions/decrypt?keyId=<id>.
// The body is the base64 encrypted data key.
func (h *Handler) DecryptDataKey(w http.ResponseWriter, r *http.Request) {
	keyID := r.URL.Query().Get("keyId")
	if keyID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing keyId"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	encryptedKey := strings.TrimSpace(string(body))
	if encryptedKey == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing encrypted key"})
		return
	}

	plaintext, err := h.keys.DecryptDataKey(r.Context(), keyID, encryptedKey)
	if err != nil {
		h.logger.WithError(err).WithField("keyId", keyID).Warn("Failed to decrypt data key")
		status := http.StatusInternalServerError
		if errors.Is(err, datakey.ErrInvalidKeyMaterial) {
			status = http.StatusBadRequest
		}
		h.writeJSON(w, status, errorResponse{Error: "failed to decrypt data key"})
		return
	}

	h.writeJSON(w, http.StatusOK, decryptResponse{KeyID: keyID, PlaintextKey: plaintext})
}

// Healthcheck handles GET /healthcheck
func (h *Handler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to write response")
	}
}
