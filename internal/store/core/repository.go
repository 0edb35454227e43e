package core

import "context"

// MFAState agrupa los campos MFA que se mutan juntos.
// Enabled=true exige Secret y RecoveryHashes no-nil; deshabilitar limpia todo.
type MFAState struct {
	Enabled        bool
	Secret         *string
	RecoveryHashes *string
}

// Repository es el "user store" del subsistema de identidad. El resto del
// backend (clínicas, mascotas, turnos) vive en otros repositorios; acá solo
// entra lo que el login necesita.
//
// Las secuencias read-modify-write sobre MFA (flip de enabled, consumo de
// recovery code) deben ser atómicas: el adaptador las ejecuta dentro de una
// transacción o con un UPDATE condicional, nunca en dos round-trips sueltos.
type Repository interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	CreateUser(ctx context.Context, u *User) error

	// SetMFAState reemplaza el estado MFA completo en una sola operación.
	SetMFAState(ctx context.Context, userID string, st MFAState) error

	// ReplaceRecoveryHashes persiste el set con un código menos después de
	// consumirlo. expected es el valor previo: si otro request ya lo cambió,
	// el adaptador devuelve ErrConflict y el código no se consume dos veces.
	ReplaceRecoveryHashes(ctx context.Context, userID string, expected, updated string) error
}
