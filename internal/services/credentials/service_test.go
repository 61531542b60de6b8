package credentials

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"strings"
	"testing"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key for testing.
func generateTestKey(t *testing.T) string {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return string(pem.EncodeToMemory(pemBlock))
}

// generateEncryptedTestKey generates an ed25519 key protected by the
// given passphrase.
func generateEncryptedTestKey(t *testing.T, passphrase string) string {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKeyWithPassphrase(privateKey, "", []byte(passphrase))
	require.NoError(t, err)

	return string(pem.EncodeToMemory(pemBlock))
}

func TestProvision_KeyAuth(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: generateTestKey(t)},
	}

	provisioned, err := svc.Provision(cfg)

	require.NoError(t, err)
	defer provisioned.Teardown()
	assert.Len(t, provisioned.AuthMethods(), 1)
	assert.Nil(t, provisioned.ProxyAuthMethods())
}

func TestProvision_KeyWithoutTrailingNewline(t *testing.T) {
	svc := New(testLogger())
	key := strings.TrimRight(generateTestKey(t), "\n")
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: key},
	}

	provisioned, err := svc.Provision(cfg)

	require.NoError(t, err)
	defer provisioned.Teardown()
	assert.Len(t, provisioned.AuthMethods(), 1)
}

func TestProvision_MalformedKey(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: "not a private key"},
	}

	_, err := svc.Provision(cfg)

	var authErr *models.AuthLoadError
	require.ErrorAs(t, err, &authErr)
}

func TestProvision_EncryptedKey(t *testing.T) {
	svc := New(testLogger())
	key := generateEncryptedTestKey(t, "sesame")

	provisioned, err := svc.Provision(models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: key, Passphrase: "sesame"},
	})
	require.NoError(t, err)
	provisioned.Teardown()

	_, err = svc.Provision(models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: key, Passphrase: "wrong"},
	})
	var authErr *models.AuthLoadError
	require.ErrorAs(t, err, &authErr)
}

func TestProvision_PasswordAuth(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Password: "hunter2"},
	}

	provisioned, err := svc.Provision(cfg)

	require.NoError(t, err)
	defer provisioned.Teardown()
	assert.Len(t, provisioned.AuthMethods(), 1)
}

func TestProvision_ProxyWithOwnKey(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Password: "hunter2"},
		Proxy: &models.ProxyConfig{
			Host:     "bastion",
			Port:     22,
			Username: "jump",
			Key:      generateTestKey(t),
		},
	}

	provisioned, err := svc.Provision(cfg)

	require.NoError(t, err)
	defer provisioned.Teardown()
	assert.Len(t, provisioned.AuthMethods(), 1)
	assert.Len(t, provisioned.ProxyAuthMethods(), 1)
}

func TestProvision_ProxyReusesPrimaryCredential(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: generateTestKey(t)},
		Proxy:    &models.ProxyConfig{Host: "bastion", Port: 22, Username: "deploy"},
	}

	provisioned, err := svc.Provision(cfg)

	require.NoError(t, err)
	defer provisioned.Teardown()
	assert.Len(t, provisioned.ProxyAuthMethods(), 1)
}

func TestProvision_MalformedProxyKey(t *testing.T) {
	svc := New(testLogger())
	cfg := models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: generateTestKey(t)},
		Proxy:    &models.ProxyConfig{Host: "bastion", Port: 22, Key: "garbage"},
	}

	_, err := svc.Provision(cfg)

	var authErr *models.AuthLoadError
	require.ErrorAs(t, err, &authErr)
}

func TestTeardown_Idempotent(t *testing.T) {
	svc := New(testLogger())
	provisioned, err := svc.Provision(models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: generateTestKey(t)},
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		provisioned.Teardown()
		provisioned.Teardown()
	})
}

func TestTeardown_RevokesKeyringIdentities(t *testing.T) {
	svc := New(testLogger())
	provisioned, err := svc.Provision(models.Config{
		Username: "deploy",
		Auth:     models.AuthConfig{Key: generateTestKey(t)},
	})
	require.NoError(t, err)

	impl, ok := provisioned.(*Provisioned)
	require.True(t, ok)

	signers, err := impl.keyring.Signers()
	require.NoError(t, err)
	assert.Len(t, signers, 1)

	provisioned.Teardown()

	signers, err = impl.keyring.Signers()
	require.NoError(t, err)
	assert.Empty(t, signers)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "abc\n", normalizeKey("abc"))
	assert.Equal(t, "abc\n", normalizeKey("abc\n"))
}
