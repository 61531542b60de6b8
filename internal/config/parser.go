// Package config provides input parsing from CI environment variables or
// a configuration file.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/spf13/viper"
)

const (
	defaultPort           = 22
	defaultRemoteShell    = "bash"
	defaultConnectTimeout = 30  // seconds
	defaultCommandTimeout = 600 // seconds; 0 means unlimited
)

// Parser handles input parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new input parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("port", defaultPort)
	v.SetDefault("proxy_port", defaultPort)
	v.SetDefault("remote_shell", defaultRemoteShell)
	v.SetDefault("connect_timeout", defaultConnectTimeout)
	v.SetDefault("command_timeout", defaultCommandTimeout)
	return &Parser{v: v}
}

// LoadEnv loads configuration from the CI platform's environment variable
// convention (INPUT_HOST, INPUT_USERNAME, ...).
func (p *Parser) LoadEnv() (*models.Config, error) {
	p.v.SetEnvPrefix("INPUT")
	p.v.AutomaticEnv()

	return p.parse()
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, &models.ValidationError{Reason: "reading config file: " + err.Error()}
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, &models.ValidationError{Reason: "reading config: " + err.Error()}
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		Username:       p.v.GetString("username"),
		Script:         p.v.GetString("script"),
		ScriptFile:     p.v.GetString("script_file"),
		Envs:           splitList(p.v.GetString("envs")),
		RemoteShell:    p.v.GetString("remote_shell"),
		ConnectTimeout: time.Duration(p.v.GetInt("connect_timeout")) * time.Second,
		CommandTimeout: time.Duration(p.v.GetInt("command_timeout")) * time.Second,
		Fingerprint:    p.v.GetString("fingerprint"),
		RequestPTY:     p.v.GetBool("request_pty"),
		ExtraArgs:      strings.Fields(p.v.GetString("args")),
		Auth: models.AuthConfig{
			Key:        p.v.GetString("key"),
			Passphrase: p.v.GetString("passphrase"),
			Password:   p.v.GetString("password"),
		},
	}

	hostList := p.v.GetString("host")
	if strings.TrimSpace(hostList) == "" {
		return nil, &models.ValidationError{Reason: "host is required"}
	}

	hosts, err := parseHosts(hostList, p.v.GetInt("port"))
	if err != nil {
		return nil, err
	}
	cfg.Hosts = hosts

	if cfg.Username == "" {
		return nil, &models.ValidationError{Reason: "username is required"}
	}

	// Exactly one credential source. Rejecting both avoids guessing which
	// one the caller meant.
	switch {
	case cfg.Auth.Key == "" && cfg.Auth.Password == "":
		return nil, &models.ValidationError{Reason: "either key or password is required"}
	case cfg.Auth.Key != "" && cfg.Auth.Password != "":
		return nil, &models.ValidationError{Reason: "key and password are mutually exclusive"}
	}

	// Exactly one script source.
	switch {
	case cfg.Script == "" && cfg.ScriptFile == "":
		return nil, &models.ValidationError{Reason: "either script or script_file is required"}
	case cfg.Script != "" && cfg.ScriptFile != "":
		return nil, &models.ValidationError{Reason: "script and script_file are mutually exclusive"}
	}

	if cfg.ConnectTimeout < 0 {
		return nil, &models.ValidationError{Reason: "connect_timeout must not be negative"}
	}
	if cfg.CommandTimeout < 0 {
		return nil, &models.ValidationError{Reason: "command_timeout must not be negative"}
	}

	// Parse optional jump host config.
	if p.v.GetString("proxy_host") != "" {
		cfg.Proxy = &models.ProxyConfig{
			Host:       p.v.GetString("proxy_host"),
			Port:       p.v.GetInt("proxy_port"),
			Username:   p.v.GetString("proxy_username"),
			Key:        p.v.GetString("proxy_key"),
			Passphrase: p.v.GetString("proxy_passphrase"),
			Password:   p.v.GetString("proxy_password"),
		}

		if cfg.Proxy.Username == "" {
			cfg.Proxy.Username = cfg.Username
		}
		if cfg.Proxy.Key != "" && cfg.Proxy.Password != "" {
			return nil, &models.ValidationError{Reason: "proxy_key and proxy_password are mutually exclusive"}
		}
	} else if p.v.GetString("proxy_key") != "" || p.v.GetString("proxy_username") != "" ||
		p.v.GetString("proxy_password") != "" {
		return nil, &models.ValidationError{Reason: "proxy_host is required when proxy settings are given"}
	}

	return cfg, nil
}

// parseHosts splits a comma-separated host list into targets. Entries may
// carry their own port as host:port; otherwise the global port applies.
// Empty entries after trimming are dropped.
func parseHosts(list string, port int) ([]models.HostTarget, error) {
	var hosts []models.HostTarget
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		target := models.HostTarget{Host: entry, Port: port}
		if strings.Contains(entry, ":") {
			host, portStr, err := net.SplitHostPort(entry)
			if err != nil {
				return nil, &models.ValidationError{Reason: "invalid host entry " + strconv.Quote(entry)}
			}
			entryPort, err := strconv.Atoi(portStr)
			if err != nil || entryPort <= 0 {
				return nil, &models.ValidationError{Reason: "invalid port in host entry " + strconv.Quote(entry)}
			}
			target = models.HostTarget{Host: host, Port: entryPort}
		}
		hosts = append(hosts, target)
	}

	if len(hosts) == 0 {
		return nil, &models.ValidationError{Reason: "host list contains no usable entries"}
	}

	return hosts, nil
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate performs validation on an already-built configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return &models.ValidationError{Reason: "configuration is nil"}
	}

	if len(cfg.Hosts) == 0 {
		return &models.ValidationError{Reason: "host is required"}
	}

	if cfg.Username == "" {
		return &models.ValidationError{Reason: "username is required"}
	}

	if (cfg.Auth.Key == "") == (cfg.Auth.Password == "") {
		return &models.ValidationError{Reason: "exactly one of key or password is required"}
	}

	if (cfg.Script == "") == (cfg.ScriptFile == "") {
		return &models.ValidationError{Reason: "exactly one of script or script_file is required"}
	}

	return nil
}
