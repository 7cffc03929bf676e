// Package enclave abstracts where the agent's signing key lives. In
// attested deployments the key is derived inside the enclave and
// resolutions carry a signed attestation blob; outside, a configured
// private key and a plain software signer serve the same interfaces.
package enclave

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyProvider yields the agent wallet key.
type KeyProvider interface {
	Key() (*ecdsa.PrivateKey, error)
}

// EnvKeyProvider parses a hex-encoded private key from configuration.
type EnvKeyProvider struct {
	hexKey string
}

// NewEnvKeyProvider wraps a hex private key (0x prefix optional).
func NewEnvKeyProvider(hexKey string) *EnvKeyProvider {
	return &EnvKeyProvider{hexKey: hexKey}
}

// Key implements KeyProvider.
func (p *EnvKeyProvider) Key() (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(p.hexKey, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("enclave: parse private key: %w", err)
	}
	return key, nil
}

// SoftwareAttester signs resolution payloads with the wallet key. It is
// the non-enclave stand-in: same blob shape, no hardware root of trust.
type SoftwareAttester struct {
	key *ecdsa.PrivateKey
}

// NewSoftwareAttester builds an attester over the wallet key.
func NewSoftwareAttester(key *ecdsa.PrivateKey) *SoftwareAttester {
	return &SoftwareAttester{key: key}
}

// Attest returns a hex signature over the keccak hash of the payload.
func (a *SoftwareAttester) Attest(payload []byte) (string, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, a.key)
	if err != nil {
		return "", fmt.Errorf("enclave: sign attestation: %w", err)
	}
	return hex.EncodeToString(sig), nil
}
