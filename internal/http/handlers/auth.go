// Package handlers expone el subsistema de identidad por HTTP. Los
// handlers son finos: decodifican, llaman al service y mapean sentinels a
// status codes. Ninguna decisión de negocio vive acá.
package handlers

import (
	"errors"
	"net/http"

	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	"github.com/dropDatabas3/vetsecure/internal/http/middlewares"
	"github.com/dropDatabas3/vetsecure/internal/observability/logger"
	"github.com/dropDatabas3/vetsecure/internal/service/auth"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type Auth struct {
	svc *auth.Service
}

func NewAuth(svc *auth.Service) *Auth { return &Auth{svc: svc} }

// loginResponse aplana LoginResult al shape que esperan los clientes: con
// MFA pendiente va mfaRequired+mfaToken+expiresInSeconds, sin MFA van los
// tokens al tope. "token" es el nombre histórico del access token y se
// mantiene junto a "accessToken" para los clientes viejos.
type loginResponse struct {
	MFARequired      bool   `json:"mfaRequired"`
	MFAToken         string `json:"mfaToken,omitempty"`
	ExpiresInSeconds int64  `json:"expiresInSeconds,omitempty"`
	Token            string `json:"token,omitempty"`
	AccessToken      string `json:"accessToken,omitempty"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	ExpiresAt        string `json:"expiresAt,omitempty"`
}

func loginResponseFrom(res *auth.LoginResult) loginResponse {
	out := loginResponse{
		MFARequired:      res.MFARequired,
		MFAToken:         res.MFAToken,
		ExpiresInSeconds: res.ExpiresInSeconds,
	}
	if res.Tokens != nil {
		out.Token = res.Tokens.Token
		out.AccessToken = res.Tokens.Token
		out.RefreshToken = res.Tokens.RefreshToken
		out.ExpiresAt = res.Tokens.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

// tokenResponse es el shape de los endpoints que solo devuelven el par
// (verify-login y refresh): acá el nombre es accessToken, sin alias legacy.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

func pairResponse(p *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.Token,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// POST /v1/auth/login
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"` // alias legacy de identifier
		Password   string `json:"password"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "faltan identifier o password", httpx.ErrCodeInvalidJSON)
		return
	}

	res, err := h.svc.Login(r.Context(), identifier, req.Password, clientIPOf(r))
	if err != nil {
		httpx.ObserveLogin("password", "fail")
		writeAuthError(w, r, err)
		return
	}
	httpx.ObserveLogin("password", loginResult(res))
	httpx.WriteJSON(w, http.StatusOK, loginResponseFrom(res))
}

func loginResult(res *auth.LoginResult) string {
	if res.MFARequired {
		return "challenge"
	}
	return "ok"
}

// POST /v1/auth/mfa/verify
func (h *Auth) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MFAToken string `json:"mfaToken"`
		Code     string `json:"code"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "faltan mfaToken o code", httpx.ErrCodeInvalidJSON)
		return
	}

	pair, err := h.svc.VerifyLoginMFA(r.Context(), req.MFAToken, req.Code, clientIPOf(r))
	if err != nil {
		httpx.ObserveMFAVerification("fail")
		writeAuthError(w, r, err)
		return
	}
	httpx.ObserveMFAVerification("ok")
	httpx.ObserveLogin("mfa", "ok")
	httpx.WriteJSON(w, http.StatusOK, pairResponse(pair))
}

// POST /v1/auth/google
func (h *Auth) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.IDToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "falta idToken", httpx.ErrCodeInvalidJSON)
		return
	}

	res, err := h.svc.GoogleLogin(r.Context(), req.IDToken, clientIPOf(r))
	if err != nil {
		httpx.ObserveLogin("google", "fail")
		writeAuthError(w, r, err)
		return
	}
	httpx.ObserveLogin("google", loginResult(res))
	httpx.WriteJSON(w, http.StatusOK, loginResponseFrom(res))
}

// POST /v1/auth/refresh
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "falta refreshToken", httpx.ErrCodeInvalidJSON)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pairResponse(pair))
}

// GET /v1/auth/me — requiere RequireAuth.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	u := middlewares.GetUser(r.Context())
	if u == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "falta autenticación", httpx.ErrCodeTokenMissing)
		return
	}
	auths := middlewares.GetAuthorities(r.Context())
	roles := make([]string, len(auths))
	for i, a := range auths {
		roles[i] = string(a)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"username":    u.Username,
		"name":        u.Name,
		"role":        u.Role,
		"authorities": roles,
		"mfaEnabled":  u.MFAEnabled,
		"provider":    u.Provider,
		"phone":       u.Phone,
		"address":     u.Address,
	})
}

// writeAuthError traduce sentinels del service a respuestas HTTP.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "credenciales inválidas", httpx.ErrCodeInvalidCredentials)
	case errors.Is(err, auth.ErrInvalidChallenge):
		httpx.WriteError(w, http.StatusUnauthorized, "mfa_challenge_invalid", "challenge MFA inválido o vencido", httpx.ErrCodeMFARequired)
	case errors.Is(err, auth.ErrInvalidMFACode):
		httpx.WriteError(w, http.StatusBadRequest, "mfa_invalid", "código MFA inválido", httpx.ErrCodeMFAInvalid)
	case errors.Is(err, auth.ErrMFAAlreadyEnabled):
		httpx.WriteError(w, http.StatusConflict, "mfa_already_enabled", "MFA ya está habilitado", httpx.ErrCodeMFAAlreadyEnabled)
	case errors.Is(err, auth.ErrMFANotEnabled):
		httpx.WriteError(w, http.StatusConflict, "mfa_not_enabled", "MFA no está habilitado", httpx.ErrCodeMFANotEnabled)
	case errors.Is(err, auth.ErrSetupNotStarted):
		httpx.WriteError(w, http.StatusConflict, "mfa_setup_missing", "no hay enrolamiento pendiente", httpx.ErrCodeMFASetupMissing)
	case errors.Is(err, auth.ErrInvalidRefresh):
		httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "refresh token inválido", httpx.ErrCodeTokenInvalid)
	case errors.Is(err, auth.ErrGoogleDisabled):
		httpx.WriteError(w, http.StatusNotImplemented, "google_disabled", "login con Google no está habilitado", httpx.ErrCodeInternal)
	case errors.Is(err, core.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "recurso inexistente", httpx.ErrCodeInternal)
	default:
		logger.From(r.Context()).Error("error interno en auth", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", httpx.ErrCodeInternal)
	}
}
