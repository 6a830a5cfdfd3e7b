package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/pkg/errors"
)

// Digest computes the Digest header value for a request body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// ParsePrivateKey decodes a PEM-encoded RSA private key, accepting both
// PKCS#1 and PKCS#8 encodings.
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.Wrap(ErrMalformedKey, "no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedKey, err.Error())
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Wrap(ErrMalformedKey, "not an RSA private key")
	}
	return key, nil
}

// ParsePublicKey decodes a PEM-encoded RSA public key, accepting both PKIX
// and PKCS#1 encodings.
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.Wrap(ErrMalformedKey, "no PEM block found")
	}

	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.Wrap(ErrMalformedKey, "not an RSA public key")
		}
		return key, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedKey, err.Error())
	}
	return key, nil
}

// Sign signs data with an RSA private key using PKCS#1 v1.5 padding over
// SHA-256.
func Sign(privateKeyPem string, data []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return nil, err
	}

	hashed := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
}

// Verify checks an RSA-PKCS1v15/SHA-256 signature. A failed check returns a
// VerificationError; malformed key material returns ErrMalformedKey.
func Verify(publicKeyPem string, data, signature []byte) error {
	key, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return err
	}

	hashed := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
		return &VerificationError{Reason: "invalid signature"}
	}
	return nil
}

// GenerateKeyPair creates a new 2048-bit RSA keypair as (private, public)
// PEM strings.
func GenerateKeyPair() (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", err
	}

	privDer, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", err
	}
	privPem := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDer})

	pubDer, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}
	pubPem := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDer})

	return string(privPem), string(pubPem), nil
}
