// Package auth decrypts the AES-256-GCM session tokens minted by the
// miniapp frontend. Wire format: iv_hex:tag_hex:ciphertext_hex, key
// derived from the shared secret with scrypt.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var ErrDecrypt = errors.New("token decryption failed")

// scrypt parameters must match the token issuer (Node scryptSync defaults).
const (
	kdfSalt = "salt"
	kdfN    = 1 << 14
	kdfR    = 8
	kdfP    = 1
	keyLen  = 32
)

// Payload is the decrypted token body. FID is the only required field.
type Payload struct {
	FID        int64  `json:"fid"`
	Token      string `json:"token"`
	SessionEnd int64  `json:"session_end"`
}

func deriveKey(secret string) ([]byte, error) {
	return scrypt.Key([]byte(secret), []byte(kdfSalt), kdfN, kdfR, kdfP, keyLen)
}

// Decrypt returns the plaintext of an encrypted token.
func Decrypt(encrypted, secret string) ([]byte, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: invalid encrypted data format", ErrDecrypt)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv hex: %v", ErrDecrypt, err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag hex: %v", ErrDecrypt, err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext hex: %v", ErrDecrypt, err)
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	// GCM wants the auth tag appended to the ciphertext.
	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Encrypt produces a token in the same wire format. Used by tests and
// local clients.
func Encrypt(plaintext []byte, secret string) (string, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagAt := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagAt], sealed[tagAt:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext)), nil
}

// ParseToken decrypts and unmarshals a token, requiring an fid.
func ParseToken(encrypted, secret string) (Payload, error) {
	plaintext, err := Decrypt(encrypted, secret)
	if err != nil {
		return Payload{}, err
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: bad payload json: %v", ErrDecrypt, err)
	}
	if p.FID == 0 {
		return Payload{}, fmt.Errorf("%w: no fid in token", ErrDecrypt)
	}
	return p, nil
}
