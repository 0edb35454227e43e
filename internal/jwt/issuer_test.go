package jwt

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "un-secreto-de-al-menos-32-bytes-ok!!"

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := New(testSecret)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return i
}

func TestNew_RejectsShortSecret(t *testing.T) {
	if _, err := New("corto"); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestIssueAccess_RoundTrip(t *testing.T) {
	i := testIssuer(t)
	sub := Subject{ID: "3f9d2c10-0000-0000-0000-000000000001", Email: "vet@clinica.test", Username: "dragarcia", Role: "VET"}

	raw, exp, err := i.IssueAccess(sub)
	if err != nil {
		t.Fatalf("IssueAccess err: %v", err)
	}
	if until := time.Until(exp); until < 14*time.Minute || until > 16*time.Minute {
		t.Fatalf("access exp fuera del TTL esperado: %v", until)
	}

	claims, err := i.Parse(raw)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if got, _ := claims["sub"].(string); got != sub.ID {
		t.Fatalf("sub = %q, want %q", got, sub.ID)
	}
	if TokenType(claims) != TypeAccess {
		t.Fatalf("type = %q, want ACCESS", TokenType(claims))
	}
	if ClaimString(claims, "email") != sub.Email || ClaimString(claims, "role") != sub.Role {
		t.Fatalf("email/role claims missing")
	}
}

func TestIssueRefresh_CarriesNoAuthorizationClaims(t *testing.T) {
	i := testIssuer(t)
	raw, _, err := i.IssueRefresh(Subject{ID: "u1", Email: "a@b.test", Role: "VET"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := i.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if TokenType(claims) != TypeRefresh {
		t.Fatalf("type = %q", TokenType(claims))
	}
	if _, has := claims["email"]; has {
		t.Fatalf("refresh token must not carry email")
	}
	if _, has := claims["role"]; has {
		t.Fatalf("refresh token must not carry role")
	}
}

func TestParse_Expired(t *testing.T) {
	i := testIssuer(t)
	i.AccessTTL = -2 * time.Minute // ya expirado, más allá del leeway

	raw, _, err := i.IssueAccess(Subject{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := i.Parse(raw); err != ErrExpired {
		t.Fatalf("Parse err = %v, want ErrExpired", err)
	}
}

func TestParse_WithinLeeway(t *testing.T) {
	i := testIssuer(t)
	// expiró hace 10s: dentro del leeway de 30s, debe pasar
	i.AccessTTL = -10 * time.Second

	raw, _, err := i.IssueAccess(Subject{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := i.Parse(raw); err != nil {
		t.Fatalf("token dentro del leeway rechazado: %v", err)
	}
}

func TestParse_WrongIssuerAudience(t *testing.T) {
	other, _ := New(testSecret)
	other.Iss = "otro-deploy"
	raw, _, _ := other.IssueAccess(Subject{ID: "u1"})
	if _, err := testIssuer(t).Parse(raw); err != ErrWrongIssuer {
		t.Fatalf("err = %v, want ErrWrongIssuer", err)
	}

	other2, _ := New(testSecret)
	other2.Aud = "otra-api"
	raw2, _, _ := other2.IssueAccess(Subject{ID: "u1"})
	if _, err := testIssuer(t).Parse(raw2); err != ErrWrongAudience {
		t.Fatalf("err = %v, want ErrWrongAudience", err)
	}
}

func TestParse_WrongKeyOrGarbage(t *testing.T) {
	i := testIssuer(t)
	otherKey, _ := New("otra-clave-distinta-de-32-bytes-min!")
	raw, _, _ := otherKey.IssueAccess(Subject{ID: "u1"})
	if _, err := i.Parse(raw); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := i.Parse("ni.siquiera.jwt"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestResolveMFAChallenge(t *testing.T) {
	i := testIssuer(t)

	raw, exp, err := i.IssueMFAChallenge("user-42")
	if err != nil {
		t.Fatal(err)
	}
	if until := time.Until(exp); until > 3*time.Minute {
		t.Fatalf("mfa challenge TTL demasiado largo: %v", until)
	}
	uid, ok := i.ResolveMFAChallenge(raw)
	if !ok || uid != "user-42" {
		t.Fatalf("ResolveMFAChallenge = %q, %v", uid, ok)
	}

	// un ACCESS firmado válido NO sirve como challenge: falta scope=MFA
	acc, _, _ := i.IssueAccess(Subject{ID: "user-42"})
	if _, ok := i.ResolveMFAChallenge(acc); ok {
		t.Fatalf("access token accepted as MFA challenge")
	}

	// basura → ok=false, nunca panic ni error
	if _, ok := i.ResolveMFAChallenge("x"); ok {
		t.Fatalf("garbage accepted")
	}
}

func TestAccessTokenIsNotARefreshToken(t *testing.T) {
	// la firma es la misma: lo único que separa los tipos es el claim.
	i := testIssuer(t)
	raw, _, _ := i.IssueMFAChallenge("u1")
	claims, err := i.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if TokenType(claims) == TypeAccess {
		t.Fatalf("mfa token parsed as access")
	}
	if !strings.EqualFold(TokenType(claims), TypeMFA) {
		t.Fatalf("type = %q", TokenType(claims))
	}
}
