// Package logger provee el logger Zap singleton con scoping por contexto.
// "dev" loguea consola con colores, "prod" JSON. Los middlewares inyectan
// un logger con request_id en el contexto; logger.From(ctx) lo recupera
// en cualquier capa sin estado global mutable por request.
//
// Material de claves (JWT secret, encryption key) jamás pasa por acá.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el singleton. Idempotente: solo la primera llamada tiene
// efecto. Llamar al inicio de main.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el singleton; si Init no corrió, arma uno por defecto (dev/info).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

type ctxKey struct{}

// ToContext inyecta un logger scoped en el contexto (middlewares).
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From extrae el logger del contexto, con fallback al singleton.
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L()
}
