package gateway

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

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1","event_type":"transfer.succeeded"}`)
	secret := "whsec_test"

	assert.True(t, VerifyWebhookSignature(payload, sign(payload, secret), secret))

	// Header casing and padding are tolerated.
	upper := "  " + strings.ToUpper(sign(payload, secret)) + "  "
	assert.True(t, VerifyWebhookSignature(payload, upper, secret))
}

func TestVerifyWebhookSignatureRejects(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	secret := "whsec_test"

	// Wrong secret.
	assert.False(t, VerifyWebhookSignature(payload, sign(payload, "other"), secret))
	// Tampered payload.
	assert.False(t, VerifyWebhookSignature([]byte(`{"event_id":"evt_2"}`), sign(payload, secret), secret))
	// Not hex.
	assert.False(t, VerifyWebhookSignature(payload, "not-a-signature", secret))
	// Missing header or secret.
	assert.False(t, VerifyWebhookSignature(payload, "", secret))
	assert.False(t, VerifyWebhookSignature(payload, sign(payload, secret), ""))
}
