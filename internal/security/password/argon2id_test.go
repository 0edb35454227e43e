package password

import (
	"strings"
	"testing"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(Default, "Correcto-Caballo-Batería")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC prefix: %s", phc)
	}
	if !Verify("Correcto-Caballo-Batería", phc) {
		t.Fatalf("Verify rejected correct password")
	}
	if Verify("otra-cosa", phc) {
		t.Fatalf("Verify accepted wrong password")
	}
}

func TestHash_RejectsEmpty(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	for _, phc := range []string{
		"",
		"$argon2id$v=18$m=65536,t=3,p=1$abc$def",
		"$bcrypt$whatever",
		"$argon2id$v=19$m=65536,t=3,p=1$not-base64!$x",
	} {
		if Verify("x", phc) {
			t.Fatalf("Verify accepted malformed PHC %q", phc)
		}
	}
}

func TestRandomUnusable_IsValidButUnguessable(t *testing.T) {
	phc, err := RandomUnusable()
	if err != nil {
		t.Fatalf("RandomUnusable err: %v", err)
	}
	// estructuralmente válido
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("unexpected prefix: %s", phc)
	}
	// nadie lo adivina con inputs comunes
	if Verify("", phc) || Verify("password", phc) {
		t.Fatalf("RandomUnusable hash matched a trivial password")
	}
}
