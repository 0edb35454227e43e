// Package auth orquesta el login en sus tres pasos:
//
//  1. credenciales primarias (password local o ID token de Google),
//  2. si la cuenta tiene MFA, challenge corto en vez de tokens,
//  3. verificación del código TOTP o de un recovery code.
//
// Ambas rutas primarias convergen en el mismo punto de decisión
// (finishLogin): ahí y solo ahí se decide si salen tokens o un challenge.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vetsecure/internal/audit"
	"github.com/dropDatabas3/vetsecure/internal/authz"
	"github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/oauth/google"
	"github.com/dropDatabas3/vetsecure/internal/observability/logger"
	"github.com/dropDatabas3/vetsecure/internal/security/mfa"
	"github.com/dropDatabas3/vetsecure/internal/security/password"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

var (
	// ErrInvalidCredentials cubre usuario inexistente, password incorrecto y
	// cuentas federadas sin password. Mensaje único: no filtramos cuál falló.
	ErrInvalidCredentials = errors.New("credenciales inválidas")

	// ErrInvalidChallenge: el mfa token no es un challenge vigente (vencido,
	// firmado mal, o de otro tipo). Se trata como 401, igual que un login.
	ErrInvalidChallenge = errors.New("challenge MFA inválido")

	// ErrInvalidMFACode cubre código TOTP incorrecto y recovery code
	// desconocido o ya usado.
	ErrInvalidMFACode = errors.New("código MFA inválido")

	ErrMFAAlreadyEnabled = errors.New("MFA ya está habilitado")
	ErrMFANotEnabled     = errors.New("MFA no está habilitado")
	ErrSetupNotStarted   = errors.New("no hay enrolamiento MFA pendiente")

	// ErrInconsistentMFA: secreto sin recovery codes o viceversa. Estado
	// corrupto, se responde 500 y se loguea; nunca se adivina.
	ErrInconsistentMFA = errors.New("estado MFA inconsistente")

	ErrGoogleDisabled = errors.New("login con Google no está habilitado")
	ErrInvalidRefresh = errors.New("refresh token inválido")
)

// dummyHash: verificación fantasma cuando el usuario no existe, para que
// el tiempo de respuesta no delate si el email está registrado.
var dummyHash, _ = password.Hash(password.Default, "vetsecure-timing-pad")

type Service struct {
	repo   core.Repository
	tokens *jwt.Issuer
	mfa    *mfa.Service
	google google.Verifier // nil si el login federado está apagado
	audit  audit.Sink
	qrSize int
}

func New(repo core.Repository, tokens *jwt.Issuer, mfaSvc *mfa.Service, verifier google.Verifier, sink audit.Sink, qrSize int) *Service {
	if sink == nil {
		sink = audit.Discard{}
	}
	if qrSize <= 0 {
		qrSize = 256
	}
	return &Service{repo: repo, tokens: tokens, mfa: mfaSvc, google: verifier, audit: sink, qrSize: qrSize}
}

// TokenPair es lo que recibe un cliente autenticado. El campo Token repite
// el access token con el nombre que usan los clientes viejos.
type TokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// LoginResult: o Tokens, o MFAToken — nunca ambos. ExpiresInSeconds es la
// vida del challenge, para que el cliente sepa cuánto tiene para el código.
type LoginResult struct {
	MFARequired      bool       `json:"mfaRequired"`
	MFAToken         string     `json:"mfaToken,omitempty"`
	ExpiresInSeconds int64      `json:"expiresInSeconds,omitempty"`
	Tokens           *TokenPair `json:"-"`
}

func (s *Service) issuePair(u *core.User) (*TokenPair, error) {
	sub := jwt.Subject{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role}
	access, exp, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefresh(sub)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Token: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// finishLogin es el único punto donde se decide tokens vs challenge.
func (s *Service) finishLogin(ctx context.Context, u *core.User, ip string) (*LoginResult, error) {
	if err := checkMFAConsistency(u); err != nil {
		logger.From(ctx).Error("estado MFA corrupto", logger.UserID(u.ID), logger.Err(err))
		return nil, err
	}
	if u.MFAEnabled {
		challenge, _, err := s.tokens.IssueMFAChallenge(u.ID)
		if err != nil {
			return nil, err
		}
		s.audit.Record(ctx, audit.Entry{Event: audit.EventMFAChallenge, UserID: u.ID, Email: u.Email, IP: ip})
		return &LoginResult{
			MFARequired:      true,
			MFAToken:         challenge,
			ExpiresInSeconds: int64(s.tokens.MFATTL.Seconds()),
		}, nil
	}
	pair, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginOK, UserID: u.ID, Email: u.Email, IP: ip})
	return &LoginResult{Tokens: pair}, nil
}

// Login resuelve el primer paso con identifier (email o username) y password.
func (s *Service) Login(ctx context.Context, identifier, pass, ip string) (*LoginResult, error) {
	u, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			password.Verify(pass, dummyHash)
			s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginFail, Email: identifier, IP: ip, Detail: "unknown identifier"})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.HasPassword() || !password.Verify(pass, *u.PasswordHash) {
		s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginFail, UserID: u.ID, Email: u.Email, IP: ip, Detail: "bad password"})
		return nil, ErrInvalidCredentials
	}
	return s.finishLogin(ctx, u, ip)
}

func (s *Service) findByIdentifier(ctx context.Context, identifier string) (*core.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.repo.GetUserByEmail(ctx, identifier)
	}
	return s.repo.GetUserByUsername(ctx, identifier)
}

// VerifyLoginMFA completa el tercer paso. Acepta un código TOTP o un
// recovery code; el recovery se consume (single-use) antes de emitir nada.
func (s *Service) VerifyLoginMFA(ctx context.Context, mfaToken, code, ip string) (*TokenPair, error) {
	userID, ok := s.tokens.ResolveMFAChallenge(mfaToken)
	if !ok {
		return nil, ErrInvalidChallenge
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidChallenge
		}
		return nil, err
	}
	if err := checkMFAConsistency(u); err != nil {
		return nil, err
	}
	if !u.MFAEnabled || u.MFASecret == nil {
		return nil, ErrMFANotEnabled
	}

	code = strings.TrimSpace(code)
	if !s.mfa.VerifyCode(*u.MFASecret, code) {
		if err := s.consumeRecovery(ctx, u, code, ip); err != nil {
			s.audit.Record(ctx, audit.Entry{Event: audit.EventMFAVerifyFail, UserID: u.ID, Email: u.Email, IP: ip})
			return nil, err
		}
	}

	pair, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventMFAVerifyOK, UserID: u.ID, Email: u.Email, IP: ip})
	s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginOK, UserID: u.ID, Email: u.Email, IP: ip})
	return pair, nil
}

// consumeRecovery intenta gastar un recovery code. El reemplazo del set es
// compare-and-swap contra el valor leído: si otro request consumió primero,
// el store devuelve ErrConflict y este intento falla sin gastar nada.
func (s *Service) consumeRecovery(ctx context.Context, u *core.User, code, ip string) error {
	if u.MFARecoveryHashes == nil {
		return ErrInvalidMFACode
	}
	updated, ok := mfa.ConsumeRecoveryCode(*u.MFARecoveryHashes, code)
	if !ok {
		return ErrInvalidMFACode
	}
	if err := s.repo.ReplaceRecoveryHashes(ctx, u.ID, *u.MFARecoveryHashes, updated); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return ErrInvalidMFACode
		}
		return err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventRecoveryConsumed, UserID: u.ID, Email: u.Email, IP: ip})
	return nil
}

// SetupResult es la respuesta del enrolamiento. QRPNG puede venir nil si el
// render falló: el secreto y la URL otpauth alcanzan para enrolar a mano.
type SetupResult struct {
	Secret        string   `json:"secret"`
	OtpauthURL    string   `json:"otpauthUrl"`
	QRPNG         []byte   `json:"qrPng,omitempty"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

// SetupMFA inicia el enrolamiento: genera secreto y recovery codes, los
// persiste con enabled=false y devuelve los códigos EN CLARO — es la única
// vez que existen fuera del hash.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*SetupResult, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enr, err := s.mfa.GenerateEnrollment(u.Email)
	if err != nil {
		return nil, err
	}
	codes, err := mfa.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	hashes := mfa.HashForStorage(codes)

	st := core.MFAState{Enabled: false, Secret: &enr.Secret, RecoveryHashes: &hashes}
	if err := s.repo.SetMFAState(ctx, u.ID, st); err != nil {
		return nil, err
	}

	out := &SetupResult{Secret: enr.Secret, OtpauthURL: enr.OtpauthURL, RecoveryCodes: codes}
	// El QR es cortesía: si el render falla, el enrolamiento sigue.
	if png, err := s.mfa.RenderQR(enr.OtpauthURL, s.qrSize); err != nil {
		logger.From(ctx).Warn("no se pudo renderizar el QR de enrolamiento",
			logger.UserID(u.ID), logger.Err(err))
	} else {
		out.QRPNG = png
	}
	return out, nil
}

// VerifySetup habilita MFA con el primer código correcto del authenticator.
// Hasta acá enabled seguía en false: un enrolamiento abandonado no bloquea
// el login.
func (s *Service) VerifySetup(ctx context.Context, userID, code string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == nil || u.MFARecoveryHashes == nil {
		return ErrSetupNotStarted
	}
	if !s.mfa.VerifyCode(*u.MFASecret, strings.TrimSpace(code)) {
		return ErrInvalidMFACode
	}
	st := core.MFAState{Enabled: true, Secret: u.MFASecret, RecoveryHashes: u.MFARecoveryHashes}
	if err := s.repo.SetMFAState(ctx, u.ID, st); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventMFAEnabled, UserID: u.ID, Email: u.Email})
	return nil
}

// DisableMFA exige DOS pruebas: el password Y un código (TOTP o recovery).
// Un atacante con sesión robada no puede bajar MFA sin el password; uno con
// el password no puede sin el segundo factor.
func (s *Service) DisableMFA(ctx context.Context, userID, pass, code string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return ErrMFANotEnabled
	}
	if err := checkMFAConsistency(u); err != nil {
		return err
	}
	if !u.HasPassword() || !password.Verify(pass, *u.PasswordHash) {
		return ErrInvalidCredentials
	}
	code = strings.TrimSpace(code)
	if !s.mfa.VerifyCode(*u.MFASecret, code) {
		if err := s.consumeRecovery(ctx, u, code, ""); err != nil {
			return err
		}
	}
	if err := s.repo.SetMFAState(ctx, u.ID, core.MFAState{Enabled: false}); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventMFADisabled, UserID: u.ID, Email: u.Email})
	return nil
}

// GoogleLogin resuelve el primer paso con un ID token de Google Sign-In.
// Si el email no existe se crea la cuenta (rol PET_OWNER, password
// inutilizable); después converge en el mismo punto de decisión que el
// login local, MFA incluido.
func (s *Service) GoogleLogin(ctx context.Context, idToken, ip string) (*LoginResult, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	id, err := s.google.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginFail, IP: ip, Detail: "google id token rejected"})
		return nil, ErrInvalidCredentials
	}
	// El match de cuenta es por email: solo vale si Google lo verificó.
	if !id.EmailVerified {
		s.audit.Record(ctx, audit.Entry{Event: audit.EventLoginFail, Email: id.Email, IP: ip, Detail: "google email not verified"})
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.GetUserByEmail(ctx, id.Email)
	switch {
	case err == nil:
		// cuenta existente, local o federada: mismo camino
	case errors.Is(err, core.ErrNotFound):
		u, err = s.createFederatedUser(ctx, id)
		if err != nil {
			return nil, err
		}
		s.audit.Record(ctx, audit.Entry{Event: audit.EventFederatedNewUser, UserID: u.ID, Email: u.Email, IP: ip})
	default:
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{Event: audit.EventFederatedLogin, UserID: u.ID, Email: u.Email, IP: ip})
	return s.finishLogin(ctx, u, ip)
}

func (s *Service) createFederatedUser(ctx context.Context, id *google.Identity) (*core.User, error) {
	// Password presente pero imposible de acertar: la cuenta nunca entra
	// por la rama local hasta que alguien setee uno de verdad.
	unusable, err := password.RandomUnusable()
	if err != nil {
		return nil, err
	}
	name := id.Name
	if name == "" {
		name = id.Email
	}
	sub := id.Subject

	base := usernameFromEmail(id.Email)
	for attempt := 0; attempt < 2; attempt++ {
		username := base
		if attempt > 0 {
			username = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
		}
		u := &core.User{
			ID:            uuid.NewString(),
			Email:         id.Email,
			Username:      username,
			Name:          name,
			PasswordHash:  &unusable,
			Role:          string(authz.RolePetOwner),
			Provider:      core.ProviderGoogle,
			GoogleSubject: &sub,
		}
		err := s.repo.CreateUser(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrConflict) || attempt == 1 {
			return nil, err
		}
	}
	return nil, core.ErrConflict
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.ToLower(strings.TrimSpace(local))
	if local == "" {
		local = "user"
	}
	return local
}

// Refresh intercambia un refresh token válido por un par nuevo. El refresh
// entrante no se invalida (no hay revocación server-side); simplemente
// expira a los 14 días de su emisión original.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	if jwt.TokenType(claims) != jwt.TypeRefresh {
		return nil, ErrInvalidRefresh
	}
	sub := jwt.ClaimString(claims, "sub")
	u, err := s.repo.GetUserByID(ctx, sub)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	pair, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{Event: audit.EventTokenRefreshed, UserID: u.ID, Email: u.Email})
	return pair, nil
}

// checkMFAConsistency valida el invariante: secreto y recovery hashes van
// juntos, y enabled exige ambos.
func checkMFAConsistency(u *core.User) error {
	hasSecret := u.MFASecret != nil && *u.MFASecret != ""
	hasRecovery := u.MFARecoveryHashes != nil && *u.MFARecoveryHashes != ""
	if hasSecret != hasRecovery {
		return ErrInconsistentMFA
	}
	if u.MFAEnabled && !hasSecret {
		return ErrInconsistentMFA
	}
	return nil
}
