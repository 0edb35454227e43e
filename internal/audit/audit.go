// Package audit define el sink de eventos de seguridad. La persistencia es
// un colaborador externo; acá solo viaja el evento ya estructurado.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/vetsecure/internal/observability/logger"
)

// Eventos que emite el subsistema de identidad.
const (
	EventLoginOK          = "auth.login.ok"
	EventLoginFail        = "auth.login.fail"
	EventMFAChallenge     = "auth.mfa.challenge"
	EventMFAVerifyOK      = "auth.mfa.verify.ok"
	EventMFAVerifyFail    = "auth.mfa.verify.fail"
	EventMFAEnabled       = "auth.mfa.enabled"
	EventMFADisabled      = "auth.mfa.disabled"
	EventRecoveryConsumed = "auth.mfa.recovery.consumed"
	EventFederatedLogin   = "auth.federated.login"
	EventFederatedNewUser = "auth.federated.user_created"
	EventTokenRefreshed   = "auth.token.refreshed"
)

// Entry es un evento de auditoría. UserID puede ir vacío (login fallido de
// identifier desconocido); Detail nunca lleva credenciales ni secretos.
type Entry struct {
	Event  string
	UserID string
	Email  string
	IP     string
	Detail string
}

// Sink recibe eventos. Las implementaciones no deben bloquear el request
// path más de lo que tarda un write buffereado.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// ZapSink escribe los eventos como líneas estructuradas del logger.
// Suficiente para dev y para deployments que recolectan stdout; un sink a
// base de datos entra por la misma interfaz.
type ZapSink struct{}

func (ZapSink) Record(ctx context.Context, e Entry) {
	fields := []zap.Field{zap.String("audit_event", e.Event)}
	if e.UserID != "" {
		fields = append(fields, logger.UserID(e.UserID))
	}
	if e.Email != "" {
		fields = append(fields, logger.Email(e.Email))
	}
	if e.IP != "" {
		fields = append(fields, logger.ClientIP(e.IP))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	logger.From(ctx).Info("security audit", fields...)
}

// Discard ignora todo. Para tests.
type Discard struct{}

func (Discard) Record(context.Context, Entry) {}
