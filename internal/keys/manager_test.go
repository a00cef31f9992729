package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.KID() == "" {
		t.Fatal("kid is empty")
	}
	if len(m.KID()) != kidLen {
		t.Fatalf("kid length = %d, want %d", len(m.KID()), kidLen)
	}

	privJSON, err := os.ReadFile(filepath.Join(dir, privFile))
	if err != nil {
		t.Fatalf("read private artifact: %v", err)
	}
	pubJSON, err := os.ReadFile(filepath.Join(dir, pubFile))
	if err != nil {
		t.Fatalf("read public artifact: %v", err)
	}

	var priv, pub map[string]any
	if err := json.Unmarshal(privJSON, &priv); err != nil {
		t.Fatalf("private unmarshal: %v", err)
	}
	if err := json.Unmarshal(pubJSON, &pub); err != nil {
		t.Fatalf("public unmarshal: %v", err)
	}

	if _, ok := priv["d"]; !ok {
		t.Fatal("private key missing 'd'")
	}
	if _, ok := pub["d"]; ok {
		t.Fatal("public key should not contain 'd'")
	}
	if pub["kid"] != m.KID() || priv["kid"] != m.KID() {
		t.Fatalf("kid mismatch: pub=%v priv=%v want %s", pub["kid"], priv["kid"], m.KID())
	}
	if pub["use"] != "sig" || pub["alg"] != "RS256" || pub["kty"] != "RSA" {
		t.Fatalf("public fields: use=%v alg=%v kty=%v", pub["use"], pub["alg"], pub["kty"])
	}

	// no leftover temp files
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestOpen_LoadReturnsSameKID(t *testing.T) {
	dir := t.TempDir()
	m1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	m2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if m1.KID() != m2.KID() {
		t.Fatalf("kid changed on reload: %s vs %s", m1.KID(), m2.KID())
	}
}

func TestOpen_PartialStateFatal(t *testing.T) {
	for _, keep := range []string{privFile, pubFile} {
		t.Run("only_"+keep, func(t *testing.T) {
			dir := t.TempDir()
			if _, err := Open(dir); err != nil {
				t.Fatalf("seed Open: %v", err)
			}
			for _, f := range []string{privFile, pubFile} {
				if f != keep {
					if err := os.Remove(filepath.Join(dir, f)); err != nil {
						t.Fatalf("remove %s: %v", f, err)
					}
				}
			}
			_, err := Open(dir)
			if !errors.Is(err, ErrPartialKeyState) {
				t.Fatalf("got %v, want ErrPartialKeyState", err)
			}
		})
	}
}

func TestSign_HeaderAndLifetime(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	tok, err := m.Sign(map[string]any{"iss": "https://issuer.test", "sub": "agent_demo"}, 300*time.Second)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts", len(parts))
	}

	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var hdr map[string]any
	if err := json.Unmarshal(hb, &hdr); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if hdr["alg"] != "RS256" || hdr["kid"] != m.KID() {
		t.Fatalf("header = %v", hdr)
	}

	pb, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(pb, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	iat, _ := payload["iat"].(float64)
	exp, _ := payload["exp"].(float64)
	if int64(iat) != 1_700_000_000 {
		t.Fatalf("iat = %v", payload["iat"])
	}
	if int64(exp)-int64(iat) != 300 {
		t.Fatalf("exp-iat = %v", exp-iat)
	}
	if payload["iss"] != "https://issuer.test" {
		t.Fatalf("iss = %v", payload["iss"])
	}
}

func TestJWKS_ContainsPublicKey(t *testing.T) {
	m, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc, err := m.JWKS()
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}
	var parsed struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatalf("unmarshal jwks: %v", err)
	}
	if len(parsed.Keys) != 1 {
		t.Fatalf("keys = %d", len(parsed.Keys))
	}
	if parsed.Keys[0]["kid"] != m.KID() {
		t.Fatalf("jwks kid = %v", parsed.Keys[0]["kid"])
	}
	if _, ok := parsed.Keys[0]["d"]; ok {
		t.Fatal("jwks leaked private material")
	}
}
