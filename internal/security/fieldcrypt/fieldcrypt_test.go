package fieldcrypt

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	c, err := NewFromBytes(raw)
	if err != nil {
		t.Fatalf("NewFromBytes err: %v", err)
	}
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCipher(t)

	for _, msg := range []string{
		"unicode-♥-string",
		"",
		"Av. Siempreviva 742",
		"+54 11 5555-0199",
	} {
		ct, err := c.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt(%q) err: %v", msg, err)
		}
		pt, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestEncryptPtr_NilIsNoop(t *testing.T) {
	c := testCipher(t)

	out, err := c.EncryptPtr(nil)
	if err != nil || out != nil {
		t.Fatalf("EncryptPtr(nil) = %v, %v; want nil, nil", out, err)
	}
	out, err = c.DecryptPtr(nil)
	if err != nil || out != nil {
		t.Fatalf("DecryptPtr(nil) = %v, %v; want nil, nil", out, err)
	}

	v := "dato"
	enc, err := c.EncryptPtr(&v)
	if err != nil || enc == nil {
		t.Fatalf("EncryptPtr err: %v", err)
	}
	dec, err := c.DecryptPtr(enc)
	if err != nil || dec == nil || *dec != v {
		t.Fatalf("DecryptPtr round trip failed: %v %v", dec, err)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01 // flip
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := c.Decrypt(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestNew_RejectsBadKey(t *testing.T) {
	if _, err := New("no-es-base64!!"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
	short := base64.StdEncoding.EncodeToString([]byte("corta"))
	if _, err := New(short); err == nil {
		t.Fatalf("expected error for short key")
	}
}
