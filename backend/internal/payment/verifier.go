package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"schoolledger/backend/internal/shared"
)

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under secret,
// the signature the payment gateway sends back after checkout.
func Sign(orderID, paymentID, secret string) (string, error) {
	if secret == "" {
		return "", &shared.ConfigurationError{Key: "PAYMENT_GATEWAY_SECRET"}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether claimedSignature authorizes the payment. A mismatch
// is (false, nil); the only error is a missing secret.
func Verify(orderID, paymentID, claimedSignature, secret string) (bool, error) {
	want, err := Sign(orderID, paymentID, secret)
	if err != nil {
		return false, err
	}

	// exact lowercase hex only; hmac.Equal is constant-time
	return hmac.Equal([]byte(want), []byte(claimedSignature)), nil
}

// Verifier binds the gateway secret once at startup
type Verifier struct {
	secret string
}

// NewVerifier fails fast when the secret is not configured
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &shared.ConfigurationError{Key: "PAYMENT_GATEWAY_SECRET"}
	}
	return &Verifier{secret: secret}, nil
}

// Check returns a SignatureMismatchError when the signature does not match
func (v *Verifier) Check(orderID, paymentID, signature string) error {
	ok, err := Verify(orderID, paymentID, signature, v.secret)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.SignatureMismatchError{OrderID: orderID, PaymentID: paymentID}
	}
	return nil
}
