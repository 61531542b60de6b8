package sshexec

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testPublicKey(t *testing.T) ssh.PublicKey {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return key
}

func testAuth() []ssh.AuthMethod {
	return []ssh.AuthMethod{ssh.Password("x")}
}

func TestBuildContext_Defaults(t *testing.T) {
	cfg := models.Config{
		Username:       "deploy",
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 2 * time.Minute,
		RemoteShell:    "bash",
		RequestPTY:     true,
		ExtraArgs:      []string{"-e"},
	}

	ectx := BuildContext(cfg, testAuth(), nil)

	assert.Equal(t, "deploy", ectx.ClientConfig.User)
	assert.Equal(t, 10*time.Second, ectx.ClientConfig.Timeout)
	assert.Equal(t, 2*time.Minute, ectx.CommandTimeout)
	assert.Equal(t, 15*time.Second, ectx.KeepaliveInterval)
	assert.Equal(t, 3, ectx.KeepaliveCountMax)
	assert.True(t, ectx.RequestPTY)
	assert.Nil(t, ectx.Proxy)
}

func TestBuildContext_ProxyHop(t *testing.T) {
	cfg := models.Config{
		Username:       "deploy",
		ConnectTimeout: 10 * time.Second,
		RemoteShell:    "bash",
		Proxy: &models.ProxyConfig{
			Host:     "bastion.example.com",
			Port:     2200,
			Username: "jump",
		},
	}

	ectx := BuildContext(cfg, testAuth(), testAuth())

	require.NotNil(t, ectx.Proxy)
	assert.Equal(t, "bastion.example.com:2200", ectx.Proxy.Addr)
	assert.Equal(t, "jump", ectx.Proxy.ClientConfig.User)
	assert.Equal(t, 10*time.Second, ectx.Proxy.ClientConfig.Timeout)
}

func TestRemoteCommand(t *testing.T) {
	ectx := &ExecutionContext{RemoteShell: "bash"}
	assert.Equal(t, "bash", ectx.RemoteCommand())

	ectx = &ExecutionContext{RemoteShell: "sh", ExtraArgs: []string{"-e", "-x"}}
	assert.Equal(t, "sh -e -x", ectx.RemoteCommand())
}

func TestHostKeyCallback_NoFingerprintAcceptsAny(t *testing.T) {
	callback := hostKeyCallback("")

	err := callback("web1:22", nil, testPublicKey(t))
	assert.NoError(t, err)
}

func TestHostKeyCallback_MatchingFingerprint(t *testing.T) {
	key := testPublicKey(t)
	fingerprint := ssh.FingerprintSHA256(key)

	callback := hostKeyCallback(fingerprint)
	assert.NoError(t, callback("web1:22", nil, key))
}

func TestHostKeyCallback_FingerprintWithoutPrefix(t *testing.T) {
	key := testPublicKey(t)
	fingerprint := ssh.FingerprintSHA256(key)

	// The SHA256: prefix may be omitted by the caller.
	callback := hostKeyCallback(fingerprint[len("SHA256:"):])
	assert.NoError(t, callback("web1:22", nil, key))
}

func TestHostKeyCallback_MismatchRejected(t *testing.T) {
	callback := hostKeyCallback(ssh.FingerprintSHA256(testPublicKey(t)))

	err := callback("web1:22", nil, testPublicKey(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host key mismatch")
}
