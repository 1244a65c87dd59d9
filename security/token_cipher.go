package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	envelopePrefix    = "notify.token.v1:"
	envelopeAlgorithm = "aes-256-gcm"
	defaultKeyID      = "token-key"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type Option func(*TokenCipher)

// TokenCipher seals notification tokens with AES-GCM. Sealed values carry the
// id of the key that produced them, so retired keys keep decrypting.
type TokenCipher struct {
	keyID string
	key   []byte
	keys  map[string][]byte
}

func WithKeyID(id string) Option {
	return func(c *TokenCipher) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			c.keyID = trimmed
		}
	}
}

// WithRetiredKey registers a key that is only used to open values sealed
// under id.
func WithRetiredKey(id string, keyMaterial []byte) Option {
	return func(c *TokenCipher) {
		id = strings.TrimSpace(id)
		material := bytes.TrimSpace(keyMaterial)
		if id == "" || len(material) == 0 {
			return
		}
		c.keys[id] = normalizeKey(material)
	}
}

func NewTokenCipher(keyMaterial []byte, opts ...Option) (*TokenCipher, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	c := &TokenCipher{
		keyID: defaultKeyID,
		key:   normalizeKey(key),
		keys:  map[string][]byte{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	c.keys[c.keyID] = c.key
	return c, nil
}

func NewTokenCipherFromString(key string, opts ...Option) (*TokenCipher, error) {
	return NewTokenCipher([]byte(key), opts...)
}

func (c *TokenCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: token cipher is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	data, err := json.Marshal(envelope{
		KeyID:      c.keyID,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelopePrefix + string(data), nil
}

func (c *TokenCipher) Open(value string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: token cipher is nil")
	}
	if !IsSealed(value) {
		return "", fmt.Errorf("security: value is not sealed")
	}

	var parsed envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(value, envelopePrefix)), &parsed); err != nil {
		return "", fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.Algorithm != "" && parsed.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	key, ok := c.keys[parsed.KeyID]
	if !ok {
		return "", fmt.Errorf("security: unknown key id %q", parsed.KeyID)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return "", fmt.Errorf("security: decode nonce: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce size")
	}
	plaintext, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}
