package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func testEngine() *Engine {
	return New(map[string]string{
		"WEBHOOK_SECRET":     "ingress-secret",
		"CMP_WEBHOOK_SECRET": "egress-secret",
	})
}

func TestSignBytes(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "basic payload",
			payload: []byte(`{"event":"consent_granted","event_id":"e1"}`),
			secret:  "ingress-secret",
		},
		{
			name:    "empty payload",
			payload: []byte(`{}`),
			secret:  "ingress-secret",
		},
		{
			name:    "unicode payload",
			payload: []byte(`{"name":"café","dp_id":"日本語"}`),
			secret:  "ingress-secret",
		},
	}

	e := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := e.SignBytes("WEBHOOK_SECRET", tt.payload)
			if err != nil {
				t.Fatalf("SignBytes: %v", err)
			}

			// Valid hex, 32 bytes (HMAC-SHA256)
			decoded, err := hex.DecodeString(tag)
			if err != nil {
				t.Fatalf("tag is not valid hex: %v", err)
			}
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			// Match against the standard library directly
			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.payload)
			expected := hex.EncodeToString(mac.Sum(nil))
			if tag != expected {
				t.Errorf("tag mismatch:\n  got:  %s\n  want: %s", tag, expected)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	e := testEngine()
	payload := map[string]any{"dp_id": "dp1", "df_id": "df1", "ack_timestamp": "2026-01-01T00:00:00Z"}

	tag1, err := e.Sign("CMP_WEBHOOK_SECRET", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tag2, err := e.Sign("CMP_WEBHOOK_SECRET", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if tag1 != tag2 {
		t.Error("signing the same payload twice should produce the same tag")
	}
}

func TestSign_UnknownSecret(t *testing.T) {
	e := testEngine()
	if _, err := e.Sign("NO_SUCH_SECRET", map[string]any{"a": 1}); err == nil {
		t.Error("signing with an unknown secret should fail")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	e := testEngine()
	raw := []byte(`{"event_id":"e1","event":"consent_granted","payload":{"dp_id":"dp1"}}`)

	tag, err := e.SignBytes("WEBHOOK_SECRET", raw)
	if err != nil {
		t.Fatalf("SignBytes: %v", err)
	}

	if !e.Verify("WEBHOOK_SECRET", raw, tag) {
		t.Error("a freshly computed tag should verify")
	}
}

func TestVerify_Rejects(t *testing.T) {
	e := testEngine()
	raw := []byte(`{"event_id":"e1"}`)
	tag, _ := e.SignBytes("WEBHOOK_SECRET", raw)

	tests := []struct {
		name   string
		secret string
		raw    []byte
		tag    string
	}{
		{"empty tag", "WEBHOOK_SECRET", raw, ""},
		{"not hex", "WEBHOOK_SECRET", raw, "zz" + tag[2:]},
		{"tampered body", "WEBHOOK_SECRET", []byte(`{"event_id":"e2"}`), tag},
		{"tampered tag", "WEBHOOK_SECRET", raw, flipFirstNibble(tag)},
		{"wrong secret", "CMP_WEBHOOK_SECRET", raw, tag},
		{"unknown secret", "NO_SUCH_SECRET", raw, tag},
		{"truncated tag", "WEBHOOK_SECRET", raw, tag[:32]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if e.Verify(tt.secret, tt.raw, tt.tag) {
				t.Error("Verify should return false")
			}
		})
	}
}

func TestCanonicalJSON(t *testing.T) {
	// Map keys come out sorted and compact, matching the peer's
	// json.dumps(..., sort_keys=True, separators=(",", ":")).
	got, err := CanonicalJSON(map[string]any{
		"dp_id":         "dp1",
		"ack_status":    "HALTED",
		"ack_timestamp": "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	want := `{"ack_status":"HALTED","ack_timestamp":"2026-01-01T00:00:00Z","dp_id":"dp1"}`
	if string(got) != want {
		t.Errorf("canonical encoding:\n  got:  %s\n  want: %s", got, want)
	}
}

func TestCanonicalJSON_NoHTMLEscaping(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"message": "a<b>&c"})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"message":"a<b>&c"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNew_DropsEmptySecrets(t *testing.T) {
	e := New(map[string]string{"EMPTY": ""})
	if e.Verify("EMPTY", []byte(`{}`), computeHMAC([]byte(`{}`), "")) {
		t.Error("an empty secret must never verify")
	}
}

func flipFirstNibble(tag string) string {
	b := []byte(tag)
	if b[0] == 'a' {
		b[0] = 'b'
	} else {
		b[0] = 'a'
	}
	return string(b)
}
