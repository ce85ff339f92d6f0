package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMidtransVerifier(t *testing.T) {
	message := []byte("TRX1" + "200" + "100000.00")
	sum := sha512.Sum512([]byte("TRX1200100000.00SB-Mid-server-key"))
	valid := hex.EncodeToString(sum[:])

	v := NewMidtransVerifier("SB-Mid-server-key")
	assert.Equal(t, valid, v.Sign(message))

	tests := []struct {
		name     string
		message  []byte
		declared string
		want     bool
	}{
		{name: "valid", message: message, declared: valid, want: true},
		{name: "upper-case hex", message: message, declared: strings.ToUpper(valid), want: true},
		{name: "tampered amount", message: []byte("TRX1200999999.00"), declared: valid, want: false},
		{name: "tampered status", message: []byte("TRX1201100000.00"), declared: valid, want: false},
		{name: "empty signature", message: message, declared: "", want: false},
		{name: "truncated signature", message: message, declared: valid[:64], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(tt.message, tt.declared))
		})
	}
}

func TestMidtransVerifierWithoutKeyNeverVerifies(t *testing.T) {
	v := NewMidtransVerifier("")
	message := []byte("TRX1200100000.00")
	assert.False(t, v.Verify(message, v.Sign(message)))
}

func TestTripayVerifier(t *testing.T) {
	body := []byte(`{"merchant_ref":"TRX9","status":"PAID"}`)
	mac := hmac.New(sha256.New, []byte("private-key"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	v := NewTripayVerifier("private-key")
	assert.True(t, v.Verify(body, valid))
	assert.False(t, v.Verify([]byte(`{"merchant_ref":"TRX9","status":"PAID "}`), valid))
	assert.False(t, NewTripayVerifier("other-key").Verify(body, valid))
	assert.False(t, NewTripayVerifier("").Verify(body, NewTripayVerifier("").Sign(body)))
}
