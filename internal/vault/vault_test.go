package vault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickaq/tg-bot-schedule/internal/models"
	"github.com/nickaq/tg-bot-schedule/pkg/config"
	appErrors "github.com/nickaq/tg-bot-schedule/pkg/errors"
)

func newTestVault(t *testing.T, secret string) *Vault {
	t.Helper()
	v, err := New(config.VaultConfig{EncryptionKey: secret, KeySalt: "test-salt"})
	require.NoError(t, err)
	return v
}

func TestSealUnsealRoundTrip(t *testing.T) {
	v := newTestVault(t, "secret-key")

	blob, err := v.Seal(Credentials{Username: "student", Password: []byte("p4ssw0rd")})
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	user := &models.User{SealedCredentials: blob}
	var gotUser, gotPass string
	err = v.WithCredentials(user, func(c *Credentials) error {
		gotUser = c.Username
		gotPass = string(c.Password)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "student", gotUser)
	assert.Equal(t, "p4ssw0rd", gotPass)
}

func TestSealProducesDistinctBlobs(t *testing.T) {
	v := newTestVault(t, "secret-key")

	creds := Credentials{Username: "student", Password: []byte("p4ssw0rd")}
	blob1, err := v.Seal(creds)
	require.NoError(t, err)
	creds = Credentials{Username: "student", Password: []byte("p4ssw0rd")}
	blob2, err := v.Seal(creds)
	require.NoError(t, err)

	// random nonce per seal
	assert.NotEqual(t, blob1, blob2)
}

func TestUnsealWrongKey(t *testing.T) {
	sealer := newTestVault(t, "right-key")
	opener := newTestVault(t, "wrong-key")

	blob, err := sealer.Seal(Credentials{Username: "student", Password: []byte("p4ssw0rd")})
	require.NoError(t, err)

	called := false
	err = opener.WithCredentials(&models.User{SealedCredentials: blob}, func(c *Credentials) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called, "fn must never run on decryption failure")
	assert.Equal(t, appErrors.ErrDecryption.Code, appErrors.FromError(err).Code)
}

func TestUnsealMalformedBlob(t *testing.T) {
	v := newTestVault(t, "secret-key")

	err := v.WithCredentials(&models.User{SealedCredentials: models.SealedBlob("short")}, func(c *Credentials) error {
		t.Fatal("fn must not be called")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDecryption.Code, appErrors.FromError(err).Code)
}

func TestWithCredentialsWipesOnEveryExitPath(t *testing.T) {
	v := newTestVault(t, "secret-key")

	blob, err := v.Seal(Credentials{Username: "student", Password: []byte("p4ssw0rd")})
	require.NoError(t, err)
	user := &models.User{SealedCredentials: blob}

	var probe *Credentials
	err = v.WithCredentials(user, func(c *Credentials) error {
		probe = c
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, probe.Username)
	assert.Nil(t, probe.Password)

	probe = nil
	err = v.WithCredentials(user, func(c *Credentials) error {
		probe = c
		return errors.New("portal exploded")
	})
	require.Error(t, err)
	assert.Empty(t, probe.Username)
	assert.Nil(t, probe.Password)
}
