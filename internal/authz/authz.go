// Package authz resuelve autorización como función pura de
// (principal, hechos de ownership): sin red, sin base de datos, sin estado
// de request ambiente. Cada handler llama Check() explícitamente al tope y
// decide con el resultado tipado.
package authz

import (
	"fmt"
	"strings"
)

// Role es el único rol que porta un principal. La jerarquía es una cadena
// total estricta: cada rol hereda las authorities de todos los de abajo.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleClinicAdmin Role = "CLINIC_ADMIN"
	RoleVet         Role = "VET"
	RoleAssistant   Role = "ASSISTANT"
	RolePetOwner    Role = "PET_OWNER"
)

// chain: de más a menos privilegiado. Configuración estática; la expansión
// se precomputa una vez al cargar el paquete, nunca por request.
var chain = []Role{RoleSuperAdmin, RoleClinicAdmin, RoleVet, RoleAssistant, RolePetOwner}

var (
	rank     map[Role]int
	expanded map[Role][]Role
)

func init() {
	rank = make(map[Role]int, len(chain))
	expanded = make(map[Role][]Role, len(chain))
	for i, r := range chain {
		rank[r] = i
		// r + todo lo que está debajo, en orden
		set := make([]Role, len(chain)-i)
		copy(set, chain[i:])
		expanded[r] = set
	}
}

// ParseRole valida un rol almacenado. Un rol desconocido es un bug de datos,
// no input de usuario.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("rol desconocido: %q", s)
	}
	return r, nil
}

// Authorities devuelve el set ordenado (más a menos privilegiado) de
// authorities efectivas del rol. El slice devuelto es una copia.
func Authorities(r Role) []Role {
	set, ok := expanded[r]
	if !ok {
		return nil
	}
	out := make([]Role, len(set))
	copy(out, set)
	return out
}

// HasAtLeast reporta si have alcanza o supera want en la cadena.
func HasAtLeast(have, want Role) bool {
	hi, ok1 := rank[have]
	wi, ok2 := rank[want]
	return ok1 && ok2 && hi <= wi
}

// Principal es lo que el middleware de autenticación dejó en el contexto:
// nada más que lo necesario para decidir.
type Principal struct {
	ID   string
	Role Role
}

// Facts son los hechos de ownership que el handler YA buscó (el dueño de la
// mascota, el admin registrado de la clínica). Check no va a buscarlos.
type Facts struct {
	ResourceOwnerID string
}

// Requirement describe qué exige una operación.
type Requirement struct {
	// MinRole: rol mínimo en la cadena. Vacío = cualquier autenticado.
	MinRole Role
	// AllowOwner habilita el patrón "self or elevated": el dueño del
	// recurso pasa aunque su rol no alcance MinRole.
	AllowOwner bool
}

// Decision es el resultado tipado de un check. Reason es para logs/audit,
// nunca se muestra al cliente.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// IsResourceOwner: igualdad estructural por ID estable.
func IsResourceOwner(p Principal, resourceOwnerID string) bool {
	return p.ID != "" && p.ID == resourceOwnerID
}

// Check evalúa un requirement contra el principal y los hechos.
func Check(p Principal, req Requirement, f Facts) Decision {
	if p.ID == "" {
		return deny("principal ausente")
	}
	if req.AllowOwner && IsResourceOwner(p, f.ResourceOwnerID) {
		return allow("resource owner")
	}
	if req.MinRole == "" {
		return allow("authenticated")
	}
	if HasAtLeast(p.Role, req.MinRole) {
		return allow("role " + string(p.Role))
	}
	return deny(fmt.Sprintf("role %s < %s", p.Role, req.MinRole))
}
