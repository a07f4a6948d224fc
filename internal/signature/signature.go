// Package signature implements the keyed authentication scheme used on
// both sides of the consent event exchange: HMAC-SHA256 over a canonical
// compact JSON encoding, carried as a hex tag in the X-Consent-Signature
// (ingress) and X-DF-Signature (egress) headers.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Header names for the signature tag on each direction of the exchange.
const (
	IngressHeader = "X-Consent-Signature"
	EgressHeader  = "X-DF-Signature"
)

// Engine signs and verifies payloads against a keyring of named shared
// secrets. Both operations are pure; the engine does no I/O.
type Engine struct {
	secrets map[string]string
}

// New creates an engine over the given name -> secret keyring. Empty
// secrets are dropped so a missing key can never verify anything.
func New(secrets map[string]string) *Engine {
	ring := make(map[string]string, len(secrets))
	for name, secret := range secrets {
		if secret != "" {
			ring[name] = secret
		}
	}
	return &Engine{secrets: ring}
}

// Sign computes the hex tag for a payload under the named secret. The
// payload is encoded as canonical compact JSON first.
func (e *Engine) Sign(secretName string, payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload for signing: %w", err)
	}
	return e.SignBytes(secretName, canonical)
}

// SignBytes computes the hex tag over caller-supplied canonical bytes.
// Egress uses this to sign the exact bytes that go on the wire.
func (e *Engine) SignBytes(secretName string, canonical []byte) (string, error) {
	secret, ok := e.secrets[secretName]
	if !ok {
		return "", fmt.Errorf("unknown signing secret %q", secretName)
	}
	return computeHMAC(canonical, secret), nil
}

// Verify recomputes the tag over the raw bytes (sender key order is
// preserved by never re-encoding) and compares in constant time. It
// returns false on unknown secret, empty tag, or malformed tag; it never
// returns an error.
func (e *Engine) Verify(secretName string, raw []byte, tag string) bool {
	if tag == "" {
		return false
	}
	secret, ok := e.secrets[secretName]
	if !ok {
		return false
	}

	provided, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hmac.Equal(mac.Sum(nil), provided)
}

// CanonicalJSON encodes v as compact UTF-8 JSON without HTML escaping.
// Map keys come out lexicographically ordered, which matches the peer's
// sort_keys encoding, so signing the result is deterministic.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// computeHMAC generates an HMAC-SHA256 hex tag for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
