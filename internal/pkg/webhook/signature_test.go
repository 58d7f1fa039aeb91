package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":1000}`)
	secret := "whsec_test"

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		valid     bool
	}{
		{"Valid signature", payload, sign(payload, secret), secret, true},
		{"Valid uppercase hex", payload, strings.ToUpper(sign(payload, secret)), secret, true},
		{"Valid with surrounding whitespace", payload, "  " + sign(payload, secret) + "\n", secret, true},
		{"Wrong secret", payload, sign(payload, "other_secret"), secret, false},
		{"Tampered payload", []byte(`{"id":"evt_1","amount":9999}`), sign(payload, secret), secret, false},
		{"Missing signature", payload, "", secret, false},
		{"Missing secret", payload, sign(payload, secret), "", false},
		{"Not hex", payload, "not-a-hex-string", secret, false},
		{"Truncated signature", payload, sign(payload, secret)[:16], secret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, VerifySignature(tt.payload, tt.signature, tt.secret))
		})
	}
}
