package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the encoding
// to change without colliding with earlier fingerprints.
const (
	DomainInputs = "recon/inputs/v1"
	DomainEntity = "recon/entity/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes v's canonical encoding under domain.
func Fingerprint(domain string, v Value) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// InputsFingerprint identifies the bound inputs of one run. Two runs with the
// same operation and the same inputs yield the same fingerprint.
func InputsFingerprint(operation string, inputs Object) (string, error) {
	return Fingerprint(DomainInputs, Object{
		"operation": Text(operation),
		"inputs":    inputs,
	})
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(domain string, v Value) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
