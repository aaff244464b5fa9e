// Package signature authenticates gateway webhooks by recomputing the HMAC
// of the raw request body.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

var (
	ErrEmptyBody         = errors.New("empty request body")
	ErrMissingSignature  = errors.New("missing signature header")
	ErrSignatureMismatch = errors.New("invalid signature")
)

// Verifier checks a claimed signature over a raw body.
type Verifier interface {
	Verify(rawBody []byte, signature, secret string) bool
}

// HMAC is a Verifier for one digest and text encoding.
type HMAC struct {
	newHash func() hash.Hash
	encode  func([]byte) string
}

var (
	// Paystack signs with HMAC-SHA512, hex encoded.
	Paystack = HMAC{newHash: sha512.New, encode: hex.EncodeToString}
	// Flutterwave signs with HMAC-SHA256, base64 encoded.
	Flutterwave = HMAC{newHash: sha256.New, encode: base64.StdEncoding.EncodeToString}
)

// Sign returns the encoded HMAC of body under secret.
func (h HMAC) Sign(body []byte, secret string) string {
	mac := hmac.New(h.newHash, []byte(secret))
	mac.Write(body)
	return h.encode(mac.Sum(nil))
}

func (h HMAC) Verify(rawBody []byte, signature, secret string) bool {
	expected := h.Sign(rawBody, secret)
	claimed := strings.TrimSpace(signature)
	if len(claimed) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

// Check runs v and reports the specific reason a webhook is rejected.
func Check(v Verifier, rawBody []byte, signature, secret string) error {
	if len(rawBody) == 0 {
		return ErrEmptyBody
	}
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}
	if !v.Verify(rawBody, signature, secret) {
		return ErrSignatureMismatch
	}
	return nil
}
