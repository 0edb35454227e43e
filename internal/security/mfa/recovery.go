package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// RecoveryCodeCount es el tamaño fijo del lote generado en el enrolamiento.
const RecoveryCodeCount = 10

// GenerateRecoveryCodes produce el lote de códigos legibles (12345-67890).
// Se muestran UNA vez; después solo viven como hash.
func GenerateRecoveryCodes() ([]string, error) {
	out := make([]string, 0, RecoveryCodeCount)
	buf := make([]byte, 8)
	for i := 0; i < RecoveryCodeCount; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint64(buf)
		out = append(out, fmt.Sprintf("%05d-%05d", n%100000, (n/100000)%100000))
	}
	return out, nil
}

// hashRecoveryCode: sha256 en base64url sin padding, igual que los opaque
// tokens. Alcanza para códigos de un solo uso con 10^10 de espacio.
func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HashForStorage devuelve los hashes unidos por newline, en el orden en que
// se generaron los códigos.
func HashForStorage(codes []string) string {
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		hashes = append(hashes, hashRecoveryCode(c))
	}
	return strings.Join(hashes, "\n")
}

// ConsumeRecoveryCode busca el código en el set de hashes. Si matchea,
// devuelve el set SIN esa entrada (orden preservado) y ok=true; el caller
// persiste el resultado y el código no vuelve a matchear. Si no matchea,
// ok=false y el set no cambia.
func ConsumeRecoveryCode(storedHashes, submitted string) (updated string, ok bool) {
	submitted = strings.TrimSpace(submitted)
	if storedHashes == "" || submitted == "" {
		return "", false
	}
	want := hashRecoveryCode(submitted)
	lines := strings.Split(storedHashes, "\n")
	match := -1
	for i, h := range lines {
		if h == want {
			match = i
			break
		}
	}
	if match < 0 {
		return "", false
	}
	rest := make([]string, 0, len(lines)-1)
	rest = append(rest, lines[:match]...)
	rest = append(rest, lines[match+1:]...)
	return strings.Join(rest, "\n"), true
}
