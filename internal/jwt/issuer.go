// Package jwt emite y verifica los tres tipos de token del sistema:
// ACCESS (15m, con email/username/role), REFRESH (14d, solo sub — un refresh
// nunca autoriza acciones directamente) y MFA (120s, scope=MFA, solo sirve
// para completar el segundo paso del login).
//
// Un solo secreto HMAC firma los tres tipos; lo que los distingue es el
// claim "type". Eso simplifica el manejo de claves pero obliga a CADA
// consumidor a chequear el type esperado: la firma válida por sí sola no
// autoriza nada. Parse deliberadamente NO chequea type.
//
// No hay revocación server-side: un token comprometido vale hasta su exp.
// Logout es descarte client-side. Limitación conocida y documentada.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Tipos de token (claim "type").
const (
	TypeAccess  = "ACCESS"
	TypeRefresh = "REFRESH"
	TypeMFA     = "MFA"
)

const (
	defaultIssuer   = "vetsecure"
	defaultAudience = "vetsecure-api"

	// Tolerancia de clock skew en la verificación.
	leeway = 30 * time.Second
)

var (
	ErrExpired       = errors.New("token expirado")
	ErrWrongIssuer   = errors.New("issuer incorrecto")
	ErrWrongAudience = errors.New("audience incorrecta")
	ErrInvalidToken  = errors.New("token inválido")
)

// Subject es lo que el Issuer necesita saber de un principal para emitir
// un access token. El subject del JWT es siempre el ID (uuid); el esquema
// legacy subject=email quedó descartado.
type Subject struct {
	ID       string
	Email    string
	Username string
	Role     string
}

// Issuer firma y verifica tokens. Inmutable después de New; seguro para
// uso concurrente.
type Issuer struct {
	Iss string
	Aud string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	MFATTL     time.Duration

	secret []byte
}

// New construye un Issuer. El secreto debe tener al menos 32 bytes.
func New(secret string) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret: se requieren >= 32 bytes, hay %d", len(secret))
	}
	return &Issuer{
		Iss:        defaultIssuer,
		Aud:        defaultAudience,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
		MFATTL:     2 * time.Minute,
		secret:     []byte(secret),
	}, nil
}

func (i *Issuer) sign(sub string, ttl time.Duration, extra map[string]any) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"aud": i.Aud,
		"sub": sub,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueAccess emite un access token para el principal.
func (i *Issuer) IssueAccess(s Subject) (string, time.Time, error) {
	return i.sign(s.ID, i.AccessTTL, map[string]any{
		"type":     TypeAccess,
		"email":    s.Email,
		"username": s.Username,
		"role":     s.Role,
	})
}

// IssueRefresh emite un refresh token. Sin email ni role: no debe poder
// autorizar nada más que el intercambio por un access nuevo.
func (i *Issuer) IssueRefresh(s Subject) (string, time.Time, error) {
	return i.sign(s.ID, i.RefreshTTL, map[string]any{"type": TypeRefresh})
}

// IssueMFAChallenge emite el token corto que habilita ÚNICAMENTE el segundo
// paso del login. scope=MFA es lo que ResolveMFAChallenge exige.
func (i *Issuer) IssueMFAChallenge(userID string) (string, time.Time, error) {
	return i.sign(userID, i.MFATTL, map[string]any{"type": TypeMFA, "scope": "MFA"})
}

// Parse valida firma, issuer, audience y expiración (con leeway de 30s) y
// devuelve las claims. NO chequea "type": el caller afirma el tipo esperado
// para la operación que está haciendo (ver TokenType).
func (i *Issuer) Parse(raw string) (jwtv5.MapClaims, error) {
	tk, err := jwtv5.Parse(raw,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(i.Aud),
		jwtv5.WithLeeway(leeway),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwtv5.ErrTokenInvalidIssuer):
			return nil, ErrWrongIssuer
		case errors.Is(err, jwtv5.ErrTokenInvalidAudience):
			return nil, ErrWrongAudience
		default:
			return nil, ErrInvalidToken
		}
	}
	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveMFAChallenge valida un challenge token y devuelve el userID.
// Cualquier falla (firma, expiración, scope ausente) devuelve ok=false,
// sin distinguir causas: para el caller un challenge inválido se trata
// igual que un código incorrecto.
func (i *Issuer) ResolveMFAChallenge(raw string) (userID string, ok bool) {
	claims, err := i.Parse(raw)
	if err != nil {
		return "", false
	}
	if scope, _ := claims["scope"].(string); scope != "MFA" {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", false
	}
	return sub, true
}

// TokenType extrae el claim "type" (vacío si falta).
func TokenType(claims jwtv5.MapClaims) string {
	t, _ := claims["type"].(string)
	return t
}

// ClaimString extrae un claim string arbitrario.
func ClaimString(claims jwtv5.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
