package main

import (
	"fmt"

	"github.com/caelicode/ssh-action/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured inputs",
	Long:  `Validate the configured inputs without connecting to any host.`,
	RunE:  validateInputs,
}

func validateInputs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to parse inputs")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("input validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Hosts: %v\n", cfg.Hosts)
	fmt.Printf("  Username: %s\n", cfg.Username)
	fmt.Printf("  Remote shell: %s\n", cfg.RemoteShell)
	if cfg.Auth.Key != "" {
		fmt.Printf("  Auth: key (configured)\n")
	} else {
		fmt.Printf("  Auth: password (configured)\n")
	}
	if cfg.ScriptFile != "" {
		fmt.Printf("  Script file: %s\n", cfg.ScriptFile)
	} else {
		fmt.Printf("  Script: inline (%d bytes)\n", len(cfg.Script))
	}
	fmt.Println()
	fmt.Println("Timeouts:")
	fmt.Printf("  Connect: %s\n", cfg.ConnectTimeout)
	if cfg.CommandTimeout == 0 {
		fmt.Printf("  Command: unlimited\n")
	} else {
		fmt.Printf("  Command: %s\n", cfg.CommandTimeout)
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Jump host: %v\n", cfg.Proxy != nil)
	fmt.Printf("  Fingerprint pinning: %v\n", cfg.Fingerprint != "")
	fmt.Printf("  Request PTY: %v\n", cfg.RequestPTY)
	fmt.Printf("  Forwarded envs: %v\n", cfg.Envs)
	fmt.Printf("  Extra args: %v\n", cfg.ExtraArgs)

	if cfg.Proxy != nil {
		fmt.Println()
		fmt.Println("Jump Host Configuration:")
		fmt.Printf("  Host: %s\n", cfg.Proxy.Host)
		fmt.Printf("  Port: %d\n", cfg.Proxy.Port)
		fmt.Printf("  Username: %s\n", cfg.Proxy.Username)
		if cfg.Proxy.Key != "" || cfg.Proxy.Password != "" {
			fmt.Printf("  Credential: dedicated\n")
		} else {
			fmt.Printf("  Credential: primary (reused)\n")
		}
	}

	return nil
}
