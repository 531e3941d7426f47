package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"ddbridge/pkg/errors"
	"ddbridge/pkg/models"
)

const (
	encryptedPrefix = "ENC["
	encryptedSuffix = "]"
	keyringPrefix   = "keyring:"

	// KeyringService is the service name secrets are stored under.
	KeyringService = "ddbridge"
	// EnvEncryptionKey holds the passphrase for ENC[...] values.
	EnvEncryptionKey = "DDBRIDGE_ENCRYPTION_KEY"

	saltSize         = 16
	pbkdf2Iterations = 100000
	keySize          = 32
)

// passphrase returns the explicit key, falling back to a machine-specific
// value.
func passphrase() []byte {
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		return []byte(key)
	}
	hostname, _ := os.Hostname()
	homeDir, _ := os.UserHomeDir()
	return []byte(fmt.Sprintf("%s-%s-ddbridge", hostname, homeDir))
}

func deriveKey(salt []byte) []byte {
	return pbkdf2.Key(passphrase(), salt, pbkdf2Iterations, keySize, sha256.New)
}

// EncryptSecret seals value with AES-256-GCM. The output is
// ENC[base64(salt|nonce|ciphertext)]. Encrypted and empty values are
// returned unchanged.
func EncryptSecret(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(deriveKey(salt))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(value), nil)
	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return encryptedPrefix + base64.StdEncoding.EncodeToString(payload) + encryptedSuffix, nil
}

// DecryptSecret opens a value produced by EncryptSecret. Plain values are
// returned unchanged.
func DecryptSecret(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(value, encryptedPrefix), encryptedSuffix)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted value: %w", err)
	}
	if len(data) < saltSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	salt, data := data[:saltSize], data[saltSize:]
	gcm, err := newGCM(deriveKey(salt))
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// IsEncrypted checks if a string is an ENC[...] value.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix) && strings.HasSuffix(value, encryptedSuffix)
}

// IsKeyringRef checks if a string is a keyring:<name> reference.
func IsKeyringRef(value string) bool {
	return strings.HasPrefix(value, keyringPrefix) && len(value) > len(keyringPrefix)
}

// StoreSecret saves value in the system keyring and returns the reference
// to put in the config file.
func StoreSecret(name, value string) (string, error) {
	if name == "" {
		return "", errors.InvalidArgument("name", "must not be empty")
	}
	if err := keyring.Set(KeyringService, name, value); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSecretResolve, "failed to store in keyring").
			WithContext("name", name)
	}
	return keyringPrefix + name, nil
}

// ResolveSecret returns the plain value behind an ENC[...] value or a
// keyring:<name> reference. Other values are returned unchanged.
func ResolveSecret(value string) (string, error) {
	switch {
	case IsEncrypted(value):
		plain, err := DecryptSecret(value)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeSecretResolve, "cannot decrypt secret").
				WithSuggestions("Check that " + EnvEncryptionKey + " matches the key used to encrypt")
		}
		return plain, nil
	case IsKeyringRef(value):
		name := strings.TrimPrefix(value, keyringPrefix)
		plain, err := keyring.Get(KeyringService, name)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeSecretResolve, "cannot read secret from keyring").
				WithContext("name", name)
		}
		return plain, nil
	}
	return value, nil
}

func secretFields(config *models.Config) map[string]*string {
	return map[string]*string{
		"warehouse.snowflake.password": &config.Warehouse.Snowflake.Password,
		"staging.s3.access_key":        &config.Staging.S3.AccessKey,
		"staging.s3.secret_key":        &config.Staging.S3.SecretKey,
	}
}

// ResolveSecrets replaces every secret field with its plain value.
func ResolveSecrets(config *models.Config) error {
	for field, ptr := range secretFields(config) {
		plain, err := ResolveSecret(*ptr)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSecretResolve, "failed to resolve secret").
				WithContext("field", field)
		}
		*ptr = plain
	}
	return nil
}

// EncryptSecrets encrypts every plain secret field. Keyring references are
// left as they are.
func EncryptSecrets(config *models.Config) error {
	for field, ptr := range secretFields(config) {
		if IsKeyringRef(*ptr) {
			continue
		}
		sealed, err := EncryptSecret(*ptr)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", field, err)
		}
		*ptr = sealed
	}
	return nil
}
