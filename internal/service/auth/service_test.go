package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/vetsecure/internal/audit"
	"github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/oauth/google"
	"github.com/dropDatabas3/vetsecure/internal/security/fieldcrypt"
	"github.com/dropDatabas3/vetsecure/internal/security/mfa"
	"github.com/dropDatabas3/vetsecure/internal/security/password"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
	"github.com/dropDatabas3/vetsecure/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeGoogle struct {
	identity *google.Identity
	err      error
}

func (f *fakeGoogle) VerifyIDToken(ctx context.Context, idToken string) (*google.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type recordingSink struct{ events []string }

func (r *recordingSink) Record(_ context.Context, e audit.Entry) {
	r.events = append(r.events, e.Event)
}

func (r *recordingSink) has(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type fixture struct {
	svc    *Service
	repo   *memory.Store
	sink   *recordingSink
	mfa    *mfa.Service
	google *fakeGoogle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := fieldcrypt.NewFromBytes(make([]byte, 32))
	require.NoError(t, err)
	repo := memory.New(cipher)
	issuer, err := jwt.New(testSecret)
	require.NoError(t, err)
	mfaSvc := mfa.NewService("VetSecure")
	sink := &recordingSink{}
	g := &fakeGoogle{}
	return &fixture{
		svc:    New(repo, issuer, mfaSvc, g, sink, 128),
		repo:   repo,
		sink:   sink,
		mfa:    mfaSvc,
		google: g,
	}
}

func (f *fixture) seedUser(t *testing.T, email, username, pass string) *core.User {
	t.Helper()
	hash, err := password.Hash(password.Default, pass)
	require.NoError(t, err)
	u := &core.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		Name:         "Test User",
		PasswordHash: &hash,
		Role:         "VET",
		Provider:     core.ProviderLocal,
	}
	require.NoError(t, f.repo.CreateUser(context.Background(), u))
	return u
}

// enableMFA corre el ciclo completo de enrolamiento y devuelve los
// recovery codes en claro.
func (f *fixture) enableMFA(t *testing.T, userID string) []string {
	t.Helper()
	ctx := context.Background()
	setup, err := f.svc.SetupMFA(ctx, userID)
	require.NoError(t, err)
	code, err := f.mfa.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifySetup(ctx, userID, code))
	return setup.RecoveryCodes
}

func TestLoginPasswordOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	res, err := f.svc.Login(ctx, "vet@clinic.test", "hunter2-hunter2", "1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Tokens)
	assert.NotEmpty(t, res.Tokens.Token)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.True(t, f.sink.has(audit.EventLoginOK))

	// el access token lleva el uuid como subject
	claims, err := mustIssuer(t).Parse(res.Tokens.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims["sub"])
	assert.Equal(t, jwt.TypeAccess, jwt.TokenType(claims))
}

func TestLoginByUsername(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	res, err := f.svc.Login(context.Background(), "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	_, err := f.svc.Login(context.Background(), "vet@clinic.test", "nope", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, f.sink.has(audit.EventLoginFail))
}

func TestLoginUnknownUserSameError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "ghost@clinic.test", "whatever", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithMFAReturnsChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)

	res, err := f.svc.Login(ctx, "vet@clinic.test", "hunter2-hunter2", "")
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.NotEmpty(t, res.MFAToken)
	assert.Equal(t, int64(120), res.ExpiresInSeconds)
	assert.Nil(t, res.Tokens)
	// con MFA pendiente todavía no hay login.ok
	assert.False(t, f.sink.has(audit.EventLoginOK))
	assert.True(t, f.sink.has(audit.EventMFAChallenge))
}

func TestVerifyLoginMFAWithTOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)

	res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)
	require.True(t, res.MFARequired)

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	code, err := f.mfa.CodeAt(*stored.MFASecret, time.Now())
	require.NoError(t, err)

	pair, err := f.svc.VerifyLoginMFA(ctx, res.MFAToken, code, "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Token)
	assert.True(t, f.sink.has(audit.EventMFAVerifyOK))
	assert.True(t, f.sink.has(audit.EventLoginOK))
}

func TestVerifyLoginMFAWrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)

	res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)

	_, err = f.svc.VerifyLoginMFA(ctx, res.MFAToken, "000000", "")
	assert.ErrorIs(t, err, ErrInvalidMFACode)
	assert.True(t, f.sink.has(audit.EventMFAVerifyFail))
}

func TestVerifyLoginMFARejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)

	// un access token firmado con el mismo secreto no sirve como challenge
	access, _, err := mustIssuer(t).IssueAccess(jwt.Subject{ID: u.ID, Role: u.Role})
	require.NoError(t, err)
	_, err = f.svc.VerifyLoginMFA(ctx, access, "000000", "")
	assert.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestRecoveryCodeLoginIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	codes := f.enableMFA(t, u.ID)
	require.Len(t, codes, mfa.RecoveryCodeCount)

	login := func() string {
		res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
		require.NoError(t, err)
		require.True(t, res.MFARequired)
		return res.MFAToken
	}

	pair, err := f.svc.VerifyLoginMFA(ctx, login(), codes[3], "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Token)
	assert.True(t, f.sink.has(audit.EventRecoveryConsumed))

	// mismo código de nuevo: ya consumido
	_, err = f.svc.VerifyLoginMFA(ctx, login(), codes[3], "")
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	// otro código sigue vivo
	pair, err = f.svc.VerifyLoginMFA(ctx, login(), codes[7], "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Token)
}

func TestSetupMFADoesNotEnableUntilVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	setup, err := f.svc.SetupMFA(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.OtpauthURL, "otpauth://totp/"))
	assert.Len(t, setup.RecoveryCodes, mfa.RecoveryCodeCount)
	assert.NotEmpty(t, setup.QRPNG)

	// enrolamiento abandonado: el login sigue sin pedir MFA
	res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)
	assert.False(t, res.MFARequired)

	// código incorrecto no habilita
	err = f.svc.VerifySetup(ctx, u.ID, "000000")
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	code, err := f.mfa.CodeAt(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifySetup(ctx, u.ID, code))
	assert.True(t, f.sink.has(audit.EventMFAEnabled))

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.MFAEnabled)
}

func TestSetupMFARejectsWhenAlreadyEnabled(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)

	_, err := f.svc.SetupMFA(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestVerifySetupWithoutEnrollment(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	err := f.svc.VerifySetup(context.Background(), u.ID, "123456")
	assert.ErrorIs(t, err, ErrSetupNotStarted)
}

func TestDisableMFANeedsPasswordAndCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	codes := f.enableMFA(t, u.ID)

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	code, err := f.mfa.CodeAt(*stored.MFASecret, time.Now())
	require.NoError(t, err)

	// password malo, código bueno
	err = f.svc.DisableMFA(ctx, u.ID, "wrong", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// password bueno, código malo
	err = f.svc.DisableMFA(ctx, u.ID, "hunter2-hunter2", "000000")
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	// password bueno + recovery code
	require.NoError(t, f.svc.DisableMFA(ctx, u.ID, "hunter2-hunter2", codes[0]))
	assert.True(t, f.sink.has(audit.EventMFADisabled))

	stored, err = f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.MFAEnabled)
	assert.Nil(t, stored.MFASecret)
	assert.Nil(t, stored.MFARecoveryHashes)
}

func TestGoogleLoginCreatesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.google.identity = &google.Identity{
		Subject:       "google-sub-123",
		Email:         "owner@gmail.test",
		EmailVerified: true,
		Name:          "Pet Owner",
	}

	res, err := f.svc.GoogleLogin(ctx, "whatever-id-token", "")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	assert.True(t, f.sink.has(audit.EventFederatedNewUser))
	assert.True(t, f.sink.has(audit.EventFederatedLogin))

	u, err := f.repo.GetUserByEmail(ctx, "owner@gmail.test")
	require.NoError(t, err)
	assert.Equal(t, core.ProviderGoogle, u.Provider)
	assert.Equal(t, "PET_OWNER", u.Role)
	require.NotNil(t, u.GoogleSubject)
	assert.Equal(t, "google-sub-123", *u.GoogleSubject)

	// la cuenta federada no puede entrar por password
	_, err = f.svc.Login(ctx, "owner@gmail.test", "anything", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGoogleLoginExistingLocalAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.google.identity = &google.Identity{Subject: "sub-9", Email: "vet@clinic.test", EmailVerified: true}

	res, err := f.svc.GoogleLogin(ctx, "tok", "")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)

	claims, err := mustIssuer(t).Parse(res.Tokens.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims["sub"])
	assert.False(t, f.sink.has(audit.EventFederatedNewUser))
}

func TestGoogleLoginRespectsMFA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")
	f.enableMFA(t, u.ID)
	f.google.identity = &google.Identity{Subject: "sub-9", Email: "vet@clinic.test", EmailVerified: true}

	res, err := f.svc.GoogleLogin(ctx, "tok", "")
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Nil(t, res.Tokens)
}

func TestGoogleLoginRejectsUnverifiedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.google.identity = &google.Identity{Subject: "sub-7", Email: "owner@gmail.test", EmailVerified: false}

	_, err := f.svc.GoogleLogin(ctx, "tok", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// sin email verificado no se crea ninguna cuenta
	_, err = f.repo.GetUserByEmail(ctx, "owner@gmail.test")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.False(t, f.sink.has(audit.EventFederatedNewUser))
}

func TestGoogleLoginRejectedToken(t *testing.T) {
	f := newFixture(t)
	f.google.err = errors.New("boom")
	_, err := f.svc.GoogleLogin(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGoogleLoginDisabled(t *testing.T) {
	f := newFixture(t)
	svc := New(f.repo, mustIssuer(t), f.mfa, nil, f.sink, 0)
	_, err := svc.GoogleLogin(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrGoogleDisabled)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Token)

	claims, err := mustIssuer(t).Parse(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, jwt.TypeAccess, jwt.TokenType(claims))
	assert.Equal(t, "VET", claims["role"])
	assert.True(t, f.sink.has(audit.EventTokenRefreshed))
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	res, err := f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	require.NoError(t, err)

	// un access token no se acepta en el intercambio
	_, err = f.svc.Refresh(ctx, res.Tokens.Token)
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestInconsistentMFAStateFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.seedUser(t, "vet@clinic.test", "drvet", "hunter2-hunter2")

	// secreto sin recovery hashes: estado que nunca debería existir
	secret := "JBSWY3DPEHPK3PXP"
	err := f.repo.SetMFAState(ctx, u.ID, core.MFAState{Enabled: true, Secret: &secret})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "drvet", "hunter2-hunter2", "")
	assert.ErrorIs(t, err, ErrInconsistentMFA)
}

func mustIssuer(t *testing.T) *jwt.Issuer {
	t.Helper()
	iss, err := jwt.New(testSecret)
	require.NoError(t, err)
	return iss
}
