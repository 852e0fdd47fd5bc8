package webhook

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSignature(t *testing.T) {
	secret := "shh"
	form := url.Values{}
	form.Set("Body", "hello")
	form.Set("From", "+15551234567")
	target := "https://example.com/webhooks/gateway/messages"

	r := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Gateway-Signature", computeSignature(buildSignaturePayload(target, form), secret))

	assert.True(t, ValidateSignature(r, secret, target))
}

func TestValidateSignatureRejectsTampering(t *testing.T) {
	secret := "shh"
	form := url.Values{}
	form.Set("Body", "hello")
	target := "https://example.com/webhooks/gateway/messages"
	sig := computeSignature(buildSignaturePayload(target, form), secret)

	// Body changed after signing.
	form.Set("Body", "transfer all funds")
	r := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Gateway-Signature", sig)

	assert.False(t, ValidateSignature(r, secret, target))
}

func TestValidateSignatureRejectsMissingHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "https://example.com/x", nil)
	assert.False(t, ValidateSignature(r, "shh", "https://example.com/x"))
}

func TestParseInbound(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15551234567")
	form.Set("To", "+15550000000")
	form.Set("Body", "hi")
	form.Set("ProfileName", "Jane")

	r := httptest.NewRequest("POST", "https://example.com/x", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	msg, err := ParseInbound(r)
	require.NoError(t, err)
	assert.Equal(t, "SM123", msg.MessageID)
	assert.Equal(t, "+15551234567", msg.From)
	assert.Equal(t, "+15550000000", msg.To)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "Jane", msg.ProfileName)
}

func TestBuildAbsoluteURLHonorsForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/gateway/messages", nil)
	r.Host = "internal:8080"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "bookings.example.com")

	assert.Equal(t, "https://bookings.example.com/webhooks/gateway/messages", BuildAbsoluteURL(r))
}
