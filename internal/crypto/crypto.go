// Package crypto provides the cryptographic primitives the governance
// runtime needs: constant-time API-key hashing, HMAC message signing for
// dialectic messages, and key derivation for the name-claim token signer.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key using HKDF-SHA256. Used to derive the name-claim
// token signing key and any other subject-scoped secret from a single master
// key, so no per-purpose secret needs separate provisioning.
func DeriveKey(masterKey, salt []byte, info string, keyLen int) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, masterKey, salt, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// GenerateRandomBytes returns n cryptographically secure random bytes, used
// for API key generation.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// HMACSign computes an HMAC-SHA256 signature, used both for API-key hashing
// (HMACSign(serverSecret, apiKey)) and for dialectic message signing
// (HMACSign(apiKeyHash, canonicalEncoding)).
func HMACSign(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// HMACVerify verifies an HMAC-SHA256 signature in constant time.
func HMACVerify(key, data, signature []byte) bool {
	expected := HMACSign(key, data)
	return hmac.Equal(signature, expected)
}

// Hash256 computes SHA-256.
func Hash256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ZeroBytes overwrites a byte slice's contents; used to scrub plaintext API
// keys from memory once returned to the caller.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
