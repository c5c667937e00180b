package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	FormatPEM  = "PEM"
	FormatJWKS = "JWKS"
)

var (
	ErrInvalidKeySize = errors.New("keySize must be one of 2048, 3072, 4096")
	ErrInvalidFormat  = errors.New("format must be one of PEM, JWKS")
)

// KeyPair is a freshly generated RSA key pair. For PEM the keys are PEM
// strings; for JWKS PrivateKey is a JWK and PublicKey a JWK set.
type KeyPair struct {
	KID        string `json:"kid"`
	Format     string `json:"format"`
	KeySize    int    `json:"keySize"`
	PrivateKey any    `json:"privateKey"`
	PublicKey  any    `json:"publicKey"`
}

func validKeySize(size int) bool {
	return size == 2048 || size == 3072 || size == 4096
}

// GenerateKeyPair validates size and format before doing any work.
func GenerateKeyPair(size int, format string) (KeyPair, error) {
	if !validKeySize(size) {
		return KeyPair{}, ErrInvalidKeySize
	}
	if format != FormatPEM && format != FormatJWKS {
		return KeyPair{}, ErrInvalidFormat
	}
	priv, err := rsa.GenerateKey(rand.Reader, size)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
	}
	kid, err := Thumbprint(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, err
	}
	out := KeyPair{KID: kid, Format: format, KeySize: size}
	if format == FormatPEM {
		if out.PrivateKey, err = EncodePrivatePEM(priv); err != nil {
			return KeyPair{}, err
		}
		if out.PublicKey, err = EncodePublicPEM(&priv.PublicKey); err != nil {
			return KeyPair{}, err
		}
		return out, nil
	}
	privJWK, err := toJWK(priv, kid)
	if err != nil {
		return KeyPair{}, err
	}
	pubJWK, err := jwk.PublicKeyOf(privJWK)
	if err != nil {
		return KeyPair{}, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(pubJWK); err != nil {
		return KeyPair{}, err
	}
	out.PrivateKey = privJWK
	out.PublicKey = set
	return out, nil
}

// toJWK wraps a raw RSA key with kid, alg=RS256 and use=sig.
func toJWK(raw any, kid string) (jwk.Key, error) {
	k, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := k.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := k.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := k.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	return k, nil
}
