package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
)

// ErrBadSecret is returned when a stored value cannot be decrypted
// with the supplied secret.
var ErrBadSecret = errors.New("db: value does not decrypt with this secret")

const (
	saltLen  = 16
	keyLen   = 32
	argonT   = 1
	argonMem = 64 * 1024
	argonP   = 4
)

// Argon2id is deliberately slow, so derived keys are cached. Each
// secret gets one random salt for its lifetime in this process;
// uniqueness per value comes from the GCM nonce, not the salt. The
// cache only ever holds keys for secrets presented at runtime.
var (
	keyCacheMu sync.Mutex
	keyCache   = make(map[string][]byte)      // secret+salt -> key
	saltCache  = make(map[string][]byte)      // secret -> salt
)

func deriveKey(secret string, salt []byte) []byte {
	cacheKey := secret + string(salt)
	keyCacheMu.Lock()
	defer keyCacheMu.Unlock()
	if k, ok := keyCache[cacheKey]; ok {
		return k
	}
	k := argon2.IDKey([]byte(secret), salt, argonT, argonMem, argonP, keyLen)
	keyCache[cacheKey] = k
	return k
}

func saltFor(secret string) ([]byte, error) {
	keyCacheMu.Lock()
	if s, ok := saltCache[secret]; ok {
		keyCacheMu.Unlock()
		return s, nil
	}
	keyCacheMu.Unlock()

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	keyCacheMu.Lock()
	saltCache[secret] = salt
	keyCacheMu.Unlock()
	return salt, nil
}

// encryptValue seals plaintext into a salt||nonce||ciphertext envelope
// keyed by the secret.
func encryptValue(plaintext []byte, secret string) ([]byte, error) {
	salt, err := saltFor(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(deriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// decryptValue opens an envelope produced by encryptValue.
func decryptValue(envelope []byte, secret string) ([]byte, error) {
	if len(envelope) < saltLen {
		return nil, ErrBadSecret
	}
	salt := envelope[:saltLen]

	block, err := aes.NewCipher(deriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	if len(envelope) < saltLen+gcm.NonceSize() {
		return nil, ErrBadSecret
	}
	nonce := envelope[saltLen : saltLen+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, envelope[saltLen+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrBadSecret
	}
	return plaintext, nil
}
