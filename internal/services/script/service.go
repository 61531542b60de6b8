// Package script assembles the remote payload: exported environment
// variables followed by the script body.
package script

import (
	"os"
	"strings"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for script assembly.
type Service interface {
	Assemble(cfg models.Config, environ []string) (string, error)
}

// Impl implements the script Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new script service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Assemble resolves the script body and prepends one export statement per
// forwarded environment variable. The environment is passed in as an
// explicit snapshot (os.Environ format) rather than read ambiently. The
// result is built exactly once per run and reused byte-identical for
// every host.
func (s *Impl) Assemble(cfg models.Config, environ []string) (string, error) {
	body, err := s.resolveBody(cfg)
	if err != nil {
		return "", err
	}

	env := parseEnviron(environ)

	var b strings.Builder
	for _, name := range cfg.Envs {
		value, ok := env[name]
		if !ok || value == "" {
			// Unset and empty variables are skipped, not errors.
			s.logger.Debug().Str("name", name).Msg("skipping unset environment variable")
			continue
		}
		b.WriteString("export ")
		b.WriteString(name)
		b.WriteString("='")
		b.WriteString(escapeSingleQuotes(value))
		b.WriteString("'\n")
	}
	b.WriteString(body)

	return b.String(), nil
}

func (s *Impl) resolveBody(cfg models.Config) (string, error) {
	if cfg.ScriptFile != "" {
		content, err := os.ReadFile(cfg.ScriptFile)
		if err != nil {
			return "", &models.ScriptNotFoundError{Path: cfg.ScriptFile, Cause: err}
		}
		return string(content), nil
	}
	return cfg.Script, nil
}

// escapeSingleQuotes makes a value safe inside a single-quoted POSIX
// string: each literal quote closes the string, emits an escaped quote,
// and reopens it.
func escapeSingleQuotes(value string) string {
	return strings.ReplaceAll(value, "'", `'\''`)
}

// parseEnviron turns an os.Environ-style slice into a lookup map. Later
// entries win, matching process environment semantics.
func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[name] = value
	}
	return env
}
