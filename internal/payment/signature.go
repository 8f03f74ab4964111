package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// sign computes the hex-encoded HMAC-SHA256 of msg under key.
func sign(key []byte, msg []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the signature the customer brings back from
// checkout: hex(HMAC-SHA256(key_secret, providerOrderID + "|" + paymentID)).
// The comparison is constant-time.
func (c *Client) VerifyPaymentSignature(providerOrderID, paymentID, signature string) bool {
	expected := sign([]byte(c.cfg.KeySecret), []byte(providerOrderID+"|"+paymentID))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifyWebhookSignature checks a webhook delivery's signature header
// against the raw request body: hex(HMAC-SHA256(webhook_secret, body)).
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := sign([]byte(c.cfg.WebhookSecret), body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
