package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caelicode/ssh-action/internal/config"
	"github.com/caelicode/ssh-action/internal/models"
	"github.com/caelicode/ssh-action/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the script on every configured host",
	Long: `Execute the configured script on every host, in host-list order:
1. Validate inputs (before any credential or network activity)
2. Assemble the script payload with forwarded environment variables
3. Load credentials into an ephemeral in-memory agent
4. Run the script on each host, continuing past per-host failures
5. Emit the combined output and exit nonzero if any host failed`,
	RunE:         runAction,
	SilenceUsage: true,
}

func runAction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid inputs")
		return err
	}

	log.Info().
		Int("hosts", len(cfg.Hosts)).
		Str("username", cfg.Username).
		Msg("inputs loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	runnerSvc := runner.New(log.Logger)
	report, runErr := runnerSvc.Run(ctx, *cfg)

	// The stdout output value is published even when the run failed.
	if report != nil {
		if err := writeActionOutput("stdout", report.CombinedOutput); err != nil {
			log.Error().Err(err).Msg("failed to write output value")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("run failed")
		return runErr
	}

	log.Info().Msg("run completed successfully")
	return nil
}

func loadConfig() (*models.Config, error) {
	parser := config.NewParser()
	if configFile != "" {
		return parser.LoadFile(configFile)
	}
	return parser.LoadEnv()
}

// writeActionOutput appends a named output value to the file designated
// by the CI platform, heredoc-delimited so multi-line values survive.
// Without GITHUB_OUTPUT set it is a no-op; the combined output has
// already been streamed to stdout.
func writeActionOutput(name, value string) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	defer f.Close()

	delimiter, err := randomDelimiter()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter); err != nil {
		return fmt.Errorf("writing output value: %w", err)
	}

	return nil
}

func randomDelimiter() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating output delimiter: %w", err)
	}
	return "ghadelimiter_" + hex.EncodeToString(b), nil
}
