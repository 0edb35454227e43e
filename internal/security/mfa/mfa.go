// Package mfa implementa TOTP (RFC 6238) y recovery codes para el segundo
// factor. Los secretos son Base32 compatibles con Google Authenticator/Authy;
// la verificación tolera ±1 step (±30s) de clock skew.
package mfa

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period     = 30
	secretSize = 20 // 160 bits, estándar para SHA1
)

// Service genera y verifica credenciales TOTP. Stateless: cada llamada
// recibe el secreto; seguro para uso concurrente.
type Service struct {
	// Issuer aparece en la app authenticator ("VetSecure:email").
	Issuer string
	// Window en steps de 30s aceptados a cada lado del actual.
	Window uint
}

func NewService(issuer string) *Service {
	if issuer == "" {
		issuer = "VetSecure"
	}
	return &Service{Issuer: issuer, Window: 1}
}

// Enrollment es el material que se entrega una sola vez durante el setup.
type Enrollment struct {
	Secret     string // base32
	OtpauthURL string
}

// GenerateEnrollment crea un secreto nuevo y su URI otpauth:// para QR.
func (s *Service) GenerateEnrollment(account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  secretSize,
	})
	if err != nil {
		return nil, fmt.Errorf("totp generate: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), OtpauthURL: key.URL()}, nil
}

// RenderQR rasteriza la URI otpauth a PNG de sizePx x sizePx.
// Puede fallar (entornos sin soporte de imagen, URI corrupta); el caller
// NUNCA debe abortar el enrolamiento por eso — URI y secreto alcanzan
// para enrolar a mano.
func (s *Service) RenderQR(otpauthURL string, sizePx int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return nil, fmt.Errorf("parse otpauth url: %w", err)
	}
	img, err := key.Image(sizePx, sizePx)
	if err != nil {
		return nil, fmt.Errorf("qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// VerifyCode valida un código de 6 dígitos contra el secreto, aceptando el
// step actual y sus vecinos inmediatos. Secretos malformados cuentan como
// código inválido, no como error del servidor.
func (s *Service) VerifyCode(secret, code string) bool {
	return s.VerifyCodeAt(secret, code, time.Now().UTC())
}

// VerifyCodeAt es VerifyCode con reloj inyectado (tests).
func (s *Service) VerifyCodeAt(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    period,
		Skew:      s.Window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// CodeAt genera el código válido para un instante dado. Solo para tests y
// para la CLI de diagnóstico; el server jamás genera códigos.
func (s *Service) CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCode(secret, at)
}
