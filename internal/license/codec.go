package license

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// formatVersion leads every encrypted blob so the file layout can evolve.
const formatVersion = 0x01

const (
	keySize = 32 // AES-256
	ivSize  = aes.BlockSize
)

// Codec performs the symmetric encode/decode of a license payload and the
// computation and verification of its HMAC signature. Generator and
// Validator share one Codec configured with the same secret.
type Codec struct {
	key []byte
}

// NewCodec builds a codec from the configured shared secret. The raw secret
// bytes are used directly as the AES key, zero-padded or truncated to 32
// bytes to match how the deployed validator consumes it.
func NewCodec(secret string) *Codec {
	key := make([]byte, keySize)
	copy(key, secret)
	return &Codec{key: key}
}

// Sign computes the lowercase-hex HMAC-SHA256 over the JSON serialization
// of the signed core fields.
func (c *Codec) Sign(core SignedCore) (string, error) {
	data, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("marshal signed core: %w", err)
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the signature over the payload's signed core
// and compares it against the embedded one in constant time.
func (c *Codec) VerifySignature(p *Payload) error {
	expected, err := c.Sign(p.SignedCore())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Encrypt seals plaintext into the .license wire format:
//
//	[1 version byte][16-byte random IV][AES-256-CBC ciphertext]
//
// A fresh IV is drawn for every call, so identical plaintexts yield
// different ciphertexts.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, 1+ivSize+len(padded))
	out[0] = formatVersion
	copy(out[1:], iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[1+ivSize:], padded)
	return out, nil
}

// Decrypt is the inverse of Encrypt. Any structural defect, wrong key or
// padding error surfaces as ErrDecryptionFailed.
func (c *Codec) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < 1+ivSize+aes.BlockSize {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}
	if blob[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrDecryptionFailed, blob[0])
	}

	iv := blob[1 : 1+ivSize]
	ciphertext := blob[1+ivSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
