package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/argon2"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/pkg/config"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

const nonceSize = 12

// Credentials is the unsealed portal login pair. The password is kept as a
// byte slice so it can be wiped when the enclosing scope ends.
type Credentials struct {
	Username string `json:"username"`
	Password []byte `json:"password"`
}

// Wipe overwrites the credential contents. Called by the vault on every
// exit path of WithCredentials.
func (c *Credentials) Wipe() {
	c.Username = ""
	for i := range c.Password {
		c.Password[i] = 0
	}
	c.Password = nil
}

// Vault seals and unseals user credentials with AES-256-GCM. The sealing
// key is derived once from the configured secret with argon2id.
type Vault struct {
	key []byte
}

// New derives the sealing key and returns a ready vault.
func New(cfg config.VaultConfig) (*Vault, error) {
	if cfg.EncryptionKey == "" {
		return nil, errors.New("vault: encryption key is not configured")
	}
	salt := cfg.KeySalt
	if salt == "" {
		salt = "tg-bot-schedule"
	}
	key := argon2.IDKey([]byte(cfg.EncryptionKey), []byte(salt), 1, 64*1024, 4, 32)
	return &Vault{key: key}, nil
}

// Seal encrypts the credentials into an opaque blob: 12-byte random nonce
// followed by the AES-GCM ciphertext.
func (v *Vault) Seal(creds Credentials) (models.SealedBlob, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(plaintext)

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	sealed := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return models.SealedBlob(sealed), nil
}

// WithCredentials unseals the user's stored blob, invokes fn with the
// plaintext pair, and wipes every working copy before returning, whether or
// not fn failed. A malformed blob or wrong key yields a DECRYPTION_FAILED
// error and fn is never called.
func (v *Vault) WithCredentials(user *models.User, fn func(*Credentials) error) error {
	creds, err := v.unseal(user.SealedCredentials)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrDecryption.Code, http.StatusInternalServerError, appErrors.ErrDecryption.Message)
	}
	defer creds.Wipe()

	return fn(creds)
}

func (v *Vault) unseal(blob models.SealedBlob) (*Credentials, error) {
	if len(blob) <= nonceSize {
		return nil, errors.New("sealed blob too short")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(plaintext)

	creds := &Credentials{}
	if err := json.Unmarshal(plaintext, creds); err != nil {
		creds.Wipe()
		return nil, err
	}
	return creds, nil
}

func wipeBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
