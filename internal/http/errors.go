// Package http define el contrato de respuesta JSON del API: envelope de
// error uniforme, helpers de encode/decode y los códigos de error del
// subsistema de identidad.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Códigos de error de aplicación (campo error_code del envelope).
const (
	ErrCodeInvalidJSON        = 1102
	ErrCodeInvalidCredentials = 1201
	ErrCodeTokenMissing       = 1210
	ErrCodeTokenInvalid       = 1211
	ErrCodeTokenExpired       = 1212
	ErrCodeWrongTokenType     = 1213
	ErrCodeMFARequired        = 1220
	ErrCodeMFAInvalid         = 1221
	ErrCodeMFAAlreadyEnabled  = 1222
	ErrCodeMFANotEnabled      = 1223
	ErrCodeMFASetupMissing    = 1224
	ErrCodeForbidden          = 1301
	ErrCodeRateLimited        = 1401
	ErrCodeInternal           = 1500
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (no falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json", ErrCodeInvalidJSON)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido", ErrCodeInvalidJSON)
		return false
	}
	return true
}
