package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Provider implements canonical hashing and ECDSA P-256 signing for the
// ledger. All digests are lowercase hex SHA-256; signatures and exported
// keys are base64 so they can live inside JSON documents.
type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

// CanonicalJSON serializes v with stable key order at every nesting
// level. The value is round-tripped through interface{} so that struct
// field order never leaks into the bytes: encoding/json always writes
// map keys sorted.
func (p *Provider) CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical round-trip: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical re-marshal: %w", err)
	}
	return out, nil
}

// Hash returns the hex SHA-256 of the canonical serialization of v.
func (p *Provider) Hash(v any) (string, error) {
	canonical, err := p.CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes hashes raw bytes without canonicalization.
func (p *Provider) HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashPair computes the parent digest of two child digests. Order matters.
func (p *Provider) HashPair(left, right string) string {
	return p.HashBytes([]byte(left + right))
}

// GenerateKeyPair creates a fresh ECDSA key pair on P-256.
func (p *Provider) GenerateKeyPair() (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return priv, &priv.PublicKey, nil
}

// Sign hashes v canonically and signs the digest. Signing the digest
// rather than the raw bytes keeps the message size bounded.
func (p *Provider) Sign(v any, priv *ecdsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("sign: nil private key")
	}
	digest, err := p.Hash(v)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig, err := ecdsa.SignASN1(rand.Reader, priv, raw)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a signature produced by Sign. It never returns an error:
// any decoding or cryptographic failure is reported as false.
func (p *Provider) Verify(v any, signature string, pub *ecdsa.PublicKey) bool {
	if pub == nil || signature == "" {
		return false
	}
	digest, err := p.Hash(v)
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pub, raw, sig)
}

// ExportPrivateKey serializes a private key to base64 PKCS#8.
func (p *Provider) ExportPrivateKey(priv *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("export private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ExportPublicKey serializes a public key to base64 PKIX.
func (p *Provider) ExportPublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("export public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPrivateKey parses a base64 PKCS#8 private key.
func (p *Provider) ImportPrivateKey(encoded string) (*ecdsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("import private key: not an ECDSA key")
	}
	return priv, nil
}

// ImportPublicKey parses a base64 PKIX public key.
func (p *Provider) ImportPublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("import public key: not an ECDSA key")
	}
	return pub, nil
}
