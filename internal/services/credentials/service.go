// Package credentials turns configured secrets into live SSH auth methods.
//
// Key material is parsed in memory and loaded into an ephemeral keyring
// agent shared by every connection of the run; it is never written to
// disk. Passwords are held in memory and surfaced only at the auth
// callback boundary. Teardown revokes everything and is safe to call
// more than once.
package credentials

import (
	"strings"
	"sync"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Service defines the interface for credential provisioning.
type Service interface {
	Provision(cfg models.Config) (Context, error)
}

// Context is an activated authentication context plus its teardown
// handle.
type Context interface {
	AuthMethods() []ssh.AuthMethod
	ProxyAuthMethods() []ssh.AuthMethod
	Teardown()
}

// Provisioned holds the activated credentials for one run.
type Provisioned struct {
	keyring       agent.Agent
	primary       []ssh.AuthMethod
	proxy         []ssh.AuthMethod
	password      []byte
	proxyPassword []byte
	teardown      sync.Once
	logger        zerolog.Logger
}

// Impl implements the credentials Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new credentials service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Provision activates the configured credentials. Any parse failure is an
// AuthLoadError raised before a single connection attempt is made.
func (s *Impl) Provision(cfg models.Config) (Context, error) {
	p := &Provisioned{
		keyring: agent.NewKeyring(),
		logger:  s.logger,
	}

	switch {
	case cfg.Auth.Key != "":
		if err := p.addKey(cfg.Auth.Key, cfg.Auth.Passphrase, "primary"); err != nil {
			p.Teardown()
			return nil, err
		}
		p.primary = []ssh.AuthMethod{ssh.PublicKeysCallback(p.keyring.Signers)}
		s.logger.Debug().Msg("primary key loaded into ephemeral agent")
	default:
		p.password = []byte(cfg.Auth.Password)
		p.primary = []ssh.AuthMethod{ssh.PasswordCallback(p.passwordCallback(&p.password))}
		s.logger.Debug().Msg("using password authentication")
	}

	if cfg.Proxy != nil {
		switch {
		case cfg.Proxy.Key != "":
			if err := p.addKey(cfg.Proxy.Key, cfg.Proxy.Passphrase, "proxy"); err != nil {
				p.Teardown()
				return nil, err
			}
			p.proxy = []ssh.AuthMethod{ssh.PublicKeysCallback(p.keyring.Signers)}
			s.logger.Debug().Msg("proxy key loaded into ephemeral agent")
		case cfg.Proxy.Password != "":
			p.proxyPassword = []byte(cfg.Proxy.Password)
			p.proxy = []ssh.AuthMethod{ssh.PasswordCallback(p.passwordCallback(&p.proxyPassword))}
		default:
			// No dedicated proxy credential: the hop reuses the primary one.
			p.proxy = p.primary
		}
	}

	return p, nil
}

// addKey parses the key material and loads it into the keyring.
func (p *Provisioned) addKey(material, passphrase, comment string) error {
	var (
		raw interface{}
		err error
	)

	normalized := normalizeKey(material)
	if passphrase != "" {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase([]byte(normalized), []byte(passphrase))
	} else {
		raw, err = ssh.ParseRawPrivateKey([]byte(normalized))
	}
	if err != nil {
		return &models.AuthLoadError{Cause: err}
	}

	if err := p.keyring.Add(agent.AddedKey{PrivateKey: raw, Comment: comment}); err != nil {
		return &models.AuthLoadError{Cause: err}
	}

	return nil
}

// passwordCallback returns the secret at the moment a connection asks for
// it. After teardown the callback yields an empty secret.
func (p *Provisioned) passwordCallback(secret *[]byte) func() (string, error) {
	return func() (string, error) {
		return string(*secret), nil
	}
}

// AuthMethods returns the auth methods for target host connections.
func (p *Provisioned) AuthMethods() []ssh.AuthMethod {
	return p.primary
}

// ProxyAuthMethods returns the auth methods for the jump host, or nil if
// no jump host was configured.
func (p *Provisioned) ProxyAuthMethods() []ssh.AuthMethod {
	return p.proxy
}

// Teardown revokes every identity held for the run. Idempotent and never
// fails: it is invoked on every exit path, including fatal ones.
func (p *Provisioned) Teardown() {
	p.teardown.Do(func() {
		if err := p.keyring.RemoveAll(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to clear ephemeral agent")
		}
		zero(p.password)
		p.password = nil
		zero(p.proxyPassword)
		p.proxyPassword = nil
		p.logger.Debug().Msg("credentials torn down")
	})
}

// normalizeKey guarantees the PEM material ends with a newline, which
// tolerates trailing-newline loss from copy-pasted secrets.
func normalizeKey(material string) string {
	if strings.HasSuffix(material, "\n") {
		return material
	}
	return material + "\n"
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
