package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrNoSecret = errors.New("signature secret is not configured")

// Verifier checks that an (order, payment) pair was signed by the
// gateway with the shared key secret. It is pure: no I/O, no state,
// safe to call concurrently.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: secret}, nil
}

// Sign returns the hex HMAC-SHA256 digest of "orderID|paymentID".
// This is the exact byte string the gateway signs on its side.
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether claimed matches the expected digest. A
// mismatch is a normal false result, never an error; comparison is
// constant-time.
func (v *Verifier) Verify(orderID, paymentID, claimed string) bool {
	expected := v.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(claimed))
}
