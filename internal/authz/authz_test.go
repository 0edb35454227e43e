package authz

import "testing"

func TestAuthorities_Expansion(t *testing.T) {
	top := Authorities(RoleSuperAdmin)
	if len(top) != 5 {
		t.Fatalf("SUPER_ADMIN expands to %d authorities, want 5", len(top))
	}
	// el set del rol más alto es superset del de cualquier otro
	topSet := map[Role]bool{}
	for _, a := range top {
		topSet[a] = true
	}
	for _, r := range []Role{RoleClinicAdmin, RoleVet, RoleAssistant, RolePetOwner} {
		for _, a := range Authorities(r) {
			if !topSet[a] {
				t.Fatalf("authority %s of %s missing from SUPER_ADMIN set", a, r)
			}
		}
	}

	// el rol más bajo solo se tiene a sí mismo
	bottom := Authorities(RolePetOwner)
	if len(bottom) != 1 || bottom[0] != RolePetOwner {
		t.Fatalf("PET_OWNER authorities = %v, want [PET_OWNER]", bottom)
	}

	// orden: de más a menos privilegiado
	if top[0] != RoleSuperAdmin || top[4] != RolePetOwner {
		t.Fatalf("expansion lost its order: %v", top)
	}
}

func TestAuthorities_CopyIsSafe(t *testing.T) {
	a := Authorities(RoleVet)
	a[0] = RoleSuperAdmin // mutar la copia no toca la tabla
	b := Authorities(RoleVet)
	if b[0] != RoleVet {
		t.Fatalf("internal table was mutated")
	}
}

func TestHasAtLeast(t *testing.T) {
	cases := []struct {
		have, want Role
		ok         bool
	}{
		{RoleSuperAdmin, RolePetOwner, true},
		{RoleClinicAdmin, RoleVet, true},
		{RoleVet, RoleVet, true},
		{RoleAssistant, RoleVet, false},
		{RolePetOwner, RoleSuperAdmin, false},
		{Role("INVENTADO"), RolePetOwner, false},
	}
	for _, c := range cases {
		if got := HasAtLeast(c.have, c.want); got != c.ok {
			t.Fatalf("HasAtLeast(%s, %s) = %v, want %v", c.have, c.want, got, c.ok)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" vet ")
	if err != nil || r != RoleVet {
		t.Fatalf("ParseRole = %v, %v", r, err)
	}
	if _, err := ParseRole("PET"); err == nil {
		t.Fatalf("expected error: PET is a domain entity, not a role")
	}
}

func TestCheck(t *testing.T) {
	vet := Principal{ID: "u-vet", Role: RoleVet}
	owner := Principal{ID: "u-owner", Role: RolePetOwner}

	// rol alcanza
	if d := Check(vet, Requirement{MinRole: RoleAssistant}, Facts{}); !d.Allowed {
		t.Fatalf("vet rechazado para requirement assistant: %s", d.Reason)
	}
	// rol no alcanza
	if d := Check(owner, Requirement{MinRole: RoleVet}, Facts{}); d.Allowed {
		t.Fatalf("pet owner autorizado como vet")
	}
	// "self or elevated": el dueño pasa aunque el rol no alcance
	req := Requirement{MinRole: RoleClinicAdmin, AllowOwner: true}
	if d := Check(owner, req, Facts{ResourceOwnerID: "u-owner"}); !d.Allowed {
		t.Fatalf("dueño del recurso rechazado: %s", d.Reason)
	}
	if d := Check(owner, req, Facts{ResourceOwnerID: "otro"}); d.Allowed {
		t.Fatalf("no-dueño sin rol autorizado")
	}
	// principal vacío nunca pasa
	if d := Check(Principal{}, Requirement{}, Facts{}); d.Allowed {
		t.Fatalf("principal vacío autorizado")
	}
	// ownership con ambos IDs vacíos no matchea
	if IsResourceOwner(Principal{}, "") {
		t.Fatalf("empty ids counted as ownership")
	}
}
