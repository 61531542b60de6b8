// Package models contains the data structures used throughout ssh-action.
package models

import "time"

// Config holds the complete configuration for a run.
type Config struct {
	Hosts          []HostTarget
	Username       string
	Auth           AuthConfig
	Proxy          *ProxyConfig // nil if no jump host configured
	Script         string       // inline script body
	ScriptFile     string       // path to a script file
	Envs           []string     // environment variable names to forward
	RemoteShell    string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration // 0 = unlimited
	Fingerprint    string        // SHA-256 host key fingerprint; empty accepts any host key
	RequestPTY     bool
	ExtraArgs      []string // extra tokens appended to the remote shell invocation
}

// AuthConfig holds the primary credential. Exactly one of Key or
// Password is set after validation.
type AuthConfig struct {
	Key        string // private key material (PEM)
	Passphrase string
	Password   string
}

// ProxyConfig holds the optional jump host. If no credential of its own
// is set, the primary credential is reused for the hop.
type ProxyConfig struct {
	Host       string
	Port       int
	Username   string
	Key        string
	Passphrase string
	Password   string
}
