package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar — HTTP

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes escritos en la respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// Campos estándar — negocio

// UserID crea un campo para el ID del principal.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// RoleF crea un campo para el rol del principal.
func RoleF(v string) zap.Field {
	return zap.String("role", v)
}

// Email crea un campo para el email. Solo en eventos de seguridad, nunca
// en logs de request comunes.
func Email(v string) zap.Field {
	return zap.String("email", v)
}

// Campos estándar — sistema

// Addr crea un campo para una dirección de escucha.
func Addr(v string) zap.Field {
	return zap.String("addr", v)
}

// Component crea un campo para el componente que loguea.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación en curso.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}
