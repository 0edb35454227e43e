package handlers

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	"github.com/dropDatabas3/vetsecure/internal/http/middlewares"
)

func clientIPOf(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// POST /v1/auth/mfa/setup — requiere RequireAuth.
// Los recovery codes salen en claro UNA sola vez; el QR puede faltar.
func (h *Auth) SetupMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta autenticación", httpx.ErrCodeTokenMissing)
		return
	}

	res, err := h.svc.SetupMFA(r.Context(), p.ID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	// qr es nullable: el render puede fallar sin abortar el enrolamiento.
	out := map[string]any{
		"secret":        res.Secret,
		"otpauth":       res.OtpauthURL,
		"qr":            nil,
		"recoveryCodes": res.RecoveryCodes,
	}
	if len(res.QRPNG) > 0 {
		out["qr"] = base64.StdEncoding.EncodeToString(res.QRPNG)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// POST /v1/auth/mfa/setup/verify — requiere RequireAuth.
func (h *Auth) VerifySetupMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta autenticación", httpx.ErrCodeTokenMissing)
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "falta code", httpx.ErrCodeInvalidJSON)
		return
	}

	if err := h.svc.VerifySetup(r.Context(), p.ID, req.Code); err != nil {
		writeAuthError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /v1/auth/mfa/disable — requiere RequireAuth, password Y un segundo
// factor: code (TOTP) o recovery, cualquiera de los dos campos.
func (h *Auth) DisableMFA(w http.ResponseWriter, r *http.Request) {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta autenticación", httpx.ErrCodeTokenMissing)
		return
	}
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
		Recovery string `json:"recovery"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	// El service acepta TOTP o recovery por el mismo camino.
	code := req.Code
	if code == "" {
		code = req.Recovery
	}
	if req.Password == "" || code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "faltan password o code/recovery", httpx.ErrCodeInvalidJSON)
		return
	}

	if err := h.svc.DisableMFA(r.Context(), p.ID, req.Password, code); err != nil {
		writeAuthError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
