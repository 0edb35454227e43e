// Package google valida ID tokens de Google Sign-In.
//
// El cliente completa el flujo con Google y nos manda el id_token; acá
// sólo verificamos firma (RS256 contra el JWKS publicado), iss, aud y
// expiración. El discovery document y el JWKS se cachean en memoria.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// ErrInvalidIDToken cubre firma inválida, iss/aud incorrectos y expiración.
var ErrInvalidIDToken = errors.New("invalid google id token")

// Identity es lo único que el login federado necesita del token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier lo implementa *OIDC; los tests del servicio de auth usan un fake.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
}

type discoveryDoc struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type OIDC struct {
	ClientID string

	http  *http.Client
	mu    sync.RWMutex
	disc  *discoveryDoc
	discU time.Time

	jwks     *jwks
	jwksAt   time.Time
	jwksETag string
}

func New(clientID string) *OIDC {
	return &OIDC{
		ClientID: clientID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *OIDC) discovery(ctx context.Context) (*discoveryDoc, error) {
	g.mu.RLock()
	disc := g.disc
	stale := time.Since(g.discU) > 24*time.Hour
	g.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}
	req, _ := http.NewRequestWithContext(ctx, "GET", discoveryURL, nil)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.disc = &dd
	g.discU = time.Now()
	g.mu.Unlock()
	return &dd, nil
}

func (g *OIDC) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	g.mu.RLock()
	j := g.jwks
	age := time.Since(g.jwksAt)
	g.mu.RUnlock()
	if j != nil && age < 1*time.Hour {
		return j, nil
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if g.jwksETag != "" {
		req.Header.Set("If-None-Match", g.jwksETag)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		g.mu.Lock()
		out := g.jwks
		g.jwksAt = time.Now()
		g.mu.Unlock()
		return out, nil
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.jwks = &jj
	g.jwksAt = time.Now()
	g.jwksETag = resp.Header.Get("ETag")
	g.mu.Unlock()
	return &jj, nil
}

func (g *OIDC) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := g.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range keys.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nb, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eb, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			n := new(big.Int).SetBytes(nb)
			e := 0
			for _, b := range eb {
				e = (e << 8) | int(b)
			}
			if e == 0 {
				e = 65537
			}
			return &rsa.PublicKey{N: n, E: e}, nil
		}
	}
	return nil, errors.New("kid not found")
}

// VerifyIDToken valida firma, iss, aud y exp. Devuelve la identidad mínima.
func (g *OIDC) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidIDToken
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidIDToken
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, ErrInvalidIDToken
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("%w: unexpected alg %s", ErrInvalidIDToken, header.Alg)
	}

	key, err := g.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return nil, err
	}
	tok, err := jwtv5.Parse(idToken,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidIDToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidIDToken
	}

	iss, _ := claims["iss"].(string)
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, fmt.Errorf("%w: bad iss %s", ErrInvalidIDToken, iss)
	}

	audOK := false
	switch a := claims["aud"].(type) {
	case string:
		audOK = a == g.ClientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == g.ClientID {
				audOK = true
				break
			}
		}
	}
	if !audOK {
		return nil, fmt.Errorf("%w: bad aud", ErrInvalidIDToken)
	}

	if expf, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(expf), 0).Before(time.Now().Add(-30 * time.Second)) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidIDToken)
		}
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	verified, _ := claims["email_verified"].(bool)
	name, _ := claims["name"].(string)
	if sub == "" || email == "" {
		return nil, fmt.Errorf("%w: missing sub or email", ErrInvalidIDToken)
	}
	return &Identity{Subject: sub, Email: email, EmailVerified: verified, Name: name}, nil
}
