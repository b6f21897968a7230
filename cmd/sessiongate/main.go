package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/developingchet/sessiongate/internal/bus"
	"github.com/developingchet/sessiongate/internal/config"
	"github.com/developingchet/sessiongate/internal/gate"
	"github.com/developingchet/sessiongate/internal/logger"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "sessiongate",
		Short: "Access gate for connecting player sessions",
	}

	root.AddCommand(
		runCmd(),
		healthcheckCmd(),
		versionCmd(),
		ruleCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Str("mode", cfg.Mode).
		Dur("reload_interval", cfg.ReloadInterval).Msg("sessiongate starting")

	var repo storage.Repository
	var cache *storage.Cache
	if cfg.PersistenceEnabled {
		repo, err = storage.Open(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open rule store: %w", err)
		}
		defer repo.Close()

		cache, err = storage.OpenCache(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open snapshot cache: %w", err)
		}
		defer cache.Close()
	} else {
		log.Info().Msg("persistence disabled; serving static rules only")
	}

	b := bus.New()
	g, err := gate.New(cfg, repo, cache, b, log)
	if err != nil {
		return fmt.Errorf("build gate: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// SIGHUP re-reads the environment-backed configuration and applies the
	// reloadable parts.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := config.Load()
				if err != nil {
					log.Error().Err(err).Msg("config reload failed; keeping current configuration")
					continue
				}
				g.ApplyConfig(next)
				log.Info().Msg("configuration reloaded")
			}
		}
	}()

	return g.Run(ctx)
}

// healthcheckCmd exits 0 if the gate API is reachable.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp, err := http.Get("http://" + cfg.APIAddr + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessiongate %s\n", Version)
		},
	}
}

// ruleCmd groups the rule mutation subcommands. Both talk to a running
// daemon over the gate API; mutations are fire-and-forget, so success here
// means accepted, not applied.
func ruleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage access rules on a running daemon",
	}
	cmd.AddCommand(ruleAddCmd(), ruleDeleteCmd())
	return cmd
}

func ruleAddCmd() *cobra.Command {
	var (
		issuer  string
		subject string
		license string
		steamID int64
		ip      string
		reason  string
		expires string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule for a subject user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			issuerID, err := uuid.Parse(issuer)
			if err != nil {
				return fmt.Errorf("--issuer: %w", err)
			}
			subjectID, err := uuid.Parse(subject)
			if err != nil {
				return fmt.Errorf("--subject: %w", err)
			}

			body := map[string]any{
				"issuer_id":  issuerID,
				"subject_id": subjectID,
				"reason":     reason,
			}
			if license != "" {
				body["license"] = license
			}
			if cmd.Flags().Changed("steam-id") {
				body["steam_id"] = steamID
			}
			if ip != "" {
				body["ip_address"] = ip
			}
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires must be RFC3339: %w", err)
				}
				body["expires_at"] = t
			}

			return postJSON("http://"+cfg.APIAddr+"/v1/rules", body)
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "staff user id issuing the rule (required)")
	cmd.Flags().StringVar(&subject, "subject", "", "subject user id the rule applies to (required)")
	cmd.Flags().StringVar(&license, "license", "", "hashed license token (40 characters)")
	cmd.Flags().Int64Var(&steamID, "steam-id", 0, "Steam numeric identifier")
	cmd.Flags().StringVar(&ip, "ip", "", "IPv4 address")
	cmd.Flags().StringVar(&reason, "reason", "", "free-text justification")
	cmd.Flags().StringVar(&expires, "expires", "", "expiry timestamp (RFC3339); omit for permanent")
	_ = cmd.MarkFlagRequired("issuer")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func ruleDeleteCmd() *cobra.Command {
	var (
		issuer string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "delete <subject-user-id>",
		Short: "Soft-delete all active rules for a subject user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			subjectID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("subject id: %w", err)
			}
			issuerID, err := uuid.Parse(issuer)
			if err != nil {
				return fmt.Errorf("--issuer: %w", err)
			}

			url := fmt.Sprintf("http://%s/v1/rules/%s?issuer_id=%s&reason=%s",
				cfg.APIAddr, subjectID, issuerID, reason)
			req, err := http.NewRequest(http.MethodDelete, url, nil)
			if err != nil {
				return err
			}
			return doRequest(req)
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "staff user id issuing the deletion (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "optional reason")
	_ = cmd.MarkFlagRequired("issuer")

	return cmd
}

func postJSON(url string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	fmt.Println("accepted")
	return nil
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		redactWriter := logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(redactWriter).Level(level).With().Timestamp().Logger()
	}
	return base
}
