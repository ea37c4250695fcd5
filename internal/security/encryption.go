// Package security protects the shared license secret at rest. The secret
// may be distributed to a deployment as a sealed file: AES-256-GCM with a
// key derived from an operator passphrase via scrypt.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters, OWASP recommended minimums.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	saltSize  = 32
	nonceSize = 12
)

// sealedSecret is the on-disk representation of a sealed shared secret.
type sealedSecret struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const sealedVersion = 1

// ErrUnsealFailed signals a wrong passphrase or a corrupted sealed file.
var ErrUnsealFailed = errors.New("failed to unseal secret")

// SealSecret encrypts a shared secret under a passphrase and returns the
// serialized sealed document.
func SealSecret(secret, passphrase string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secret cannot be empty")
	}
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := sealedSecret{
		Version:    sealedVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, []byte(secret), nil),
	}
	return json.MarshalIndent(sealed, "", "  ")
}

// UnsealSecret decrypts a sealed document produced by SealSecret.
func UnsealSecret(data []byte, passphrase string) (string, error) {
	var sealed sealedSecret
	if err := json.Unmarshal(data, &sealed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	if sealed.Version != sealedVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrUnsealFailed, sealed.Version)
	}
	if len(sealed.Nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce length", ErrUnsealFailed)
	}

	gcm, err := newGCM(passphrase, sealed.Salt)
	if err != nil {
		return "", err
	}

	secret, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return "", ErrUnsealFailed
	}
	return string(secret), nil
}

// OpenSecretFile reads and unseals a secret file from disk.
func OpenSecretFile(path, passphrase string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return UnsealSecret(data, passphrase)
}

// WriteSecretFile seals a secret and writes it to path with restricted
// permissions.
func WriteSecretFile(path, secret, passphrase string) error {
	data, err := SealSecret(secret, passphrase)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SecureCompare performs constant-time comparison to prevent timing attacks.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
