package core

import "time"

// AuthProvider indica cómo se autentica la cuenta.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
)

// User es el principal del sistema. Los campos PII (Phone, Address) y el
// secreto TOTP viajan cifrados hacia/desde el store; el adaptador es el
// único que conoce el FieldCipher.
type User struct {
	ID       string // uuid
	Email    string
	Username string
	Name     string

	// nil para cuentas federadas que nunca setearon password.
	PasswordHash *string

	Role string

	// PII — cifrada en reposo, texto plano en memoria.
	Phone   *string
	Address *string

	// MFA. Invariante: MFASecret y MFARecoveryHashes van juntos
	// (ambos presentes o ambos nil); el service lo valida en cada lectura.
	MFAEnabled        bool
	MFASecret         *string // base32, cifrado en reposo
	MFARecoveryHashes *string // sha256 base64url, uno por línea

	Provider      AuthProvider
	GoogleSubject *string // "sub" estable del ID token de Google

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reporta si la cuenta tiene un password utilizable.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
