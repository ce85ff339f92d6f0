// Package signature authenticates payment gateway callbacks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Verifier checks the signature a provider declared for a signed message.
type Verifier interface {
	Verify(message []byte, declared string) bool
}

// MidtransVerifier recomputes hex(sha512(order_id + status_code + gross_amount + server_key)).
// The message passed in is the concatenation without the key.
type MidtransVerifier struct {
	serverKey string
}

func NewMidtransVerifier(serverKey string) *MidtransVerifier {
	return &MidtransVerifier{serverKey: serverKey}
}

func (v *MidtransVerifier) Sign(message []byte) string {
	h := sha512.New()
	h.Write(message)
	h.Write([]byte(v.serverKey))
	return hex.EncodeToString(h.Sum(nil))
}

func (v *MidtransVerifier) Verify(message []byte, declared string) bool {
	if v.serverKey == "" || declared == "" {
		return false
	}
	return equal(v.Sign(message), declared)
}

// TripayVerifier recomputes hex(hmac_sha256(raw_body, private_key)).
type TripayVerifier struct {
	privateKey string
}

func NewTripayVerifier(privateKey string) *TripayVerifier {
	return &TripayVerifier{privateKey: privateKey}
}

func (v *TripayVerifier) Sign(message []byte) string {
	mac := hmac.New(sha256.New, []byte(v.privateKey))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *TripayVerifier) Verify(message []byte, declared string) bool {
	if v.privateKey == "" || declared == "" {
		return false
	}
	return equal(v.Sign(message), declared)
}

// equal compares hex digests in constant time. Providers are not consistent
// about case, so both sides are lower-cased first.
func equal(expected, declared string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(declared))) == 1
}
