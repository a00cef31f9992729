// Package keys owns the issuer's signing key pair: load-or-generate
// startup, JWKS publication, and grant signing.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

const (
	privFile = "private.json"
	pubFile  = "public.json"

	// kidLen truncates the RFC 7638 thumbprint to a short stable id.
	kidLen = 8
)

// ErrPartialKeyState means exactly one of the two key artifacts exists
// on disk. Regenerating here would silently invalidate outstanding
// grants and JWKS consumers, so startup must refuse instead.
var ErrPartialKeyState = errors.New("partial key state: exactly one of private/public key artifacts exists")

func b64u(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// Manager holds the signing key for the process lifetime. The kid is
// derived from the public key material and never regenerated for an
// existing key.
type Manager struct {
	dir     string
	kid     string
	priv    jwk.Key
	pubJSON json.RawMessage

	now func() time.Time
}

// Open loads the key pair from dir, generating and persisting a fresh
// one when neither artifact exists. A partial pair is fatal.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys dir: %w", err)
	}

	privPath := filepath.Join(dir, privFile)
	pubPath := filepath.Join(dir, pubFile)
	privExists := fileExists(privPath)
	pubExists := fileExists(pubPath)

	m := &Manager{dir: dir, now: time.Now}

	switch {
	case privExists && pubExists:
		if err := m.load(privPath, pubPath); err != nil {
			return nil, err
		}
		slog.Info("loaded existing keypair", "kid", m.kid, "dir", dir)
	case !privExists && !pubExists:
		if err := m.generate(privPath, pubPath); err != nil {
			return nil, err
		}
		slog.Info("generated new keypair", "kid", m.kid, "dir", dir)
	default:
		return nil, fmt.Errorf("%w: private=%t public=%t in %s",
			ErrPartialKeyState, privExists, pubExists, dir)
	}

	return m, nil
}

func (m *Manager) load(privPath, pubPath string) error {
	privJSON, err := os.ReadFile(privPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	priv, err := jwk.ParseKey(privJSON)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	pubJSON, err := os.ReadFile(pubPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	var pubFields struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(pubJSON, &pubFields); err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if pubFields.Kid == "" {
		return fmt.Errorf("public key at %s has no kid", pubPath)
	}

	m.priv = priv
	m.pubJSON = pubJSON
	m.kid = pubFields.Kid
	return nil
}

func (m *Manager) generate(privPath, pubPath string) error {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	priv, err := jwk.Import(raw)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}
	pub, err := jwk.PublicKeyOf(priv)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	tp, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return fmt.Errorf("compute thumbprint: %w", err)
	}
	kid := b64u(tp)[:kidLen]

	for _, kv := range []struct {
		k jwk.Key
		v any
		f string
	}{
		{priv, kid, jwk.KeyIDKey},
		{priv, jwa.RS256(), jwk.AlgorithmKey},
		{pub, kid, jwk.KeyIDKey},
		{pub, jwa.RS256(), jwk.AlgorithmKey},
		{pub, "sig", jwk.KeyUsageKey},
	} {
		if err := kv.k.Set(kv.f, kv.v); err != nil {
			return fmt.Errorf("set %s: %w", kv.f, err)
		}
	}

	privJSON, err := json.MarshalIndent(priv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubJSON, err := json.MarshalIndent(pub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	if err := writePair(privPath, privJSON, pubPath, pubJSON); err != nil {
		return err
	}

	m.priv = priv
	m.pubJSON = pubJSON
	m.kid = kid
	return nil
}

// writePair persists both artifacts crash-safely: each is written to a
// temp file first, then both are promoted via rename so a crash never
// leaves one artifact newly written while the other is stale or absent.
func writePair(privPath string, privJSON []byte, pubPath string, pubJSON []byte) error {
	privTmp := privPath + ".tmp"
	pubTmp := pubPath + ".tmp"

	if err := os.WriteFile(privTmp, privJSON, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubTmp, pubJSON, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	if err := os.Rename(privTmp, privPath); err != nil {
		return fmt.Errorf("promote private key: %w", err)
	}
	if err := os.Rename(pubTmp, pubPath); err != nil {
		return fmt.Errorf("promote public key: %w", err)
	}
	return nil
}

// KID returns the stable key identifier.
func (m *Manager) KID() string { return m.kid }

// JWKS returns the public key set document served at
// /.well-known/jwks.json.
func (m *Manager) JWKS() ([]byte, error) {
	return json.Marshal(map[string]any{
		"keys": []json.RawMessage{m.pubJSON},
	})
}

// Sign produces a compact JWS over claims plus iat/exp computed from
// ttl. The protected header carries the algorithm and kid.
func (m *Manager) Sign(claims map[string]any, ttl time.Duration) (string, error) {
	now := m.now().UTC()

	payload := make(map[string]any, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	payload["exp"] = now.Add(ttl).Unix()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, m.kid); err != nil {
		return "", fmt.Errorf("set kid header: %w", err)
	}
	if err := hdrs.Set(jws.TypeKey, "JWT"); err != nil {
		return "", fmt.Errorf("set typ header: %w", err)
	}

	signed, err := jws.Sign(body, jws.WithKey(jwa.RS256(), m.priv, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return string(signed), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
