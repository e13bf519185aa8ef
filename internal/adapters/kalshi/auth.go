package kalshi

// auth.go — firma de requests del exchange.
//
// Cada request autenticada lleva tres headers:
//   KALSHI-ACCESS-KEY:       el API key ID
//   KALSHI-ACCESS-TIMESTAMP: epoch en milisegundos
//   KALSHI-ACCESS-SIGNATURE: RSA-PSS-SHA256 sobre timestamp+método+path,
//                            en base64

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Signer firma requests con la clave privada RSA de la cuenta.
type Signer struct {
	KeyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSigner construye un Signer desde el key ID y la clave en PEM.
func NewSigner(keyID string, privateKeyPEM []byte) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("kalshi.NewSigner: empty key ID")
	}
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("kalshi.NewSigner: no PEM block in private key")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("kalshi.NewSigner: parse PKCS1 key: %w", err)
		}
		key = k
	default:
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("kalshi.NewSigner: parse PKCS8 key: %w", err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi.NewSigner: key is %T, want RSA", k)
		}
		key = rsaKey
	}

	return &Signer{KeyID: keyID, key: key, now: time.Now}, nil
}

// Sign devuelve el timestamp y la firma para un método+path.
func (s *Signer) Sign(method, path string) (timestamp, signature string, err error) {
	timestamp = strconv.FormatInt(s.now().UnixMilli(), 10)
	msg := timestamp + method + path

	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", "", fmt.Errorf("kalshi.Signer.Sign: %w", err)
	}
	return timestamp, base64.StdEncoding.EncodeToString(sig), nil
}

// Credentials son las credenciales resueltas para un modo de trading.
type Credentials struct {
	KeyID      string
	PrivateKey []byte
	Base       string
}

// LoadCredentials resuelve credenciales y base URL según TRADING_MODE.
// "prod" usa KALSHI_API_KEY_ID + KALSHI_PRIVATE_KEY_PATH contra el base
// de producción; cualquier otro valor usa las variantes KALSHI_DEMO_* y
// el entorno demo. El arranque falla si faltan credenciales: operar sin
// firma no tiene sentido en ningún modo.
func LoadCredentials(mode, prodBase, demoBase string) (Credentials, error) {
	keyVar, pathVar, base := "KALSHI_DEMO_API_KEY_ID", "KALSHI_DEMO_PRIVATE_KEY_PATH", demoBase
	if mode == "prod" {
		keyVar, pathVar, base = "KALSHI_API_KEY_ID", "KALSHI_PRIVATE_KEY_PATH", prodBase
	}

	keyID := os.Getenv(keyVar)
	keyPath := os.Getenv(pathVar)
	if keyID == "" || keyPath == "" {
		return Credentials{}, fmt.Errorf("kalshi.LoadCredentials: %s and %s must be set for mode %q", keyVar, pathVar, mode)
	}
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("kalshi.LoadCredentials: read private key: %w", err)
	}
	return Credentials{KeyID: keyID, PrivateKey: pemBytes, Base: base}, nil
}
