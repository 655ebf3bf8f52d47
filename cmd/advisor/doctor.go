package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"finadvisor/internal/adapter/journal"
	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const doctorTimeout = 10 * time.Second

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	newService := func(c config.AssistantConfig) domain.AssistantService {
		return newAssistantService(c, quiet)
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API key", Fn: checkAPIKey},
		{Name: "Assistant persona", Fn: checkPersona(newService)},
		{Name: "Run limits", Fn: checkRunLimits},
		{Name: "Run journal", Fn: checkJournal},
	}
	return report(os.Stdout, cfg, checks)
}

// report runs checks against cfg, prints one line per check and a summary,
// and returns an error when any check failed.
func report(w io.Writer, cfg *config.Config, checks []Check) error {
	fmt.Fprintln(w, "finadvisor doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parses. A
// missing file is only a warning: defaults plus environment are usable.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the syntax and permissions of %s", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if !cfg.Assistant.Configured() {
		return CheckResult{
			Status:  StatusFail,
			Message: "no API key configured; every chat request will fail",
			Fix:     "Set OPENAI_API_KEY or assistant.api_key",
		}
	}
	return CheckResult{Status: StatusPass, Message: "API key present (" + maskKey(cfg.Assistant.APIKey) + ")"}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// checkPersona retrieves the configured persona to prove both the
// credential and the persona id are accepted.
func checkPersona(newService func(config.AssistantConfig) domain.AssistantService) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil || !cfg.Assistant.Configured() {
			return CheckResult{Status: StatusWarn, Message: "skipped: no API key"}
		}
		if cfg.Assistant.PersonaID == "" {
			return CheckResult{
				Status:  StatusWarn,
				Message: "no persona id configured; a new persona is created at every start",
				Fix:     "Set OPENAI_ASSISTANT_ID to the id logged at first start",
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
		defer cancel()

		p, err := newService(cfg.Assistant).RetrievePersona(ctx, cfg.Assistant.PersonaID)
		switch {
		case err == nil:
			return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (%s, %s)", p.ID, p.Name, p.Model)}
		case errors.Is(err, domain.ErrPersonaNotFound):
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("persona %s not found", cfg.Assistant.PersonaID),
				Fix:     "Unset OPENAI_ASSISTANT_ID to create a new persona, or correct the id",
			}
		case errors.Is(err, domain.ErrAuthInvalid):
			return CheckResult{Status: StatusFail, Message: "credential rejected", Fix: "Check OPENAI_API_KEY"}
		default:
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot reach assistant service: %v", err)}
		}
	}
}

func checkRunLimits(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	r := cfg.Run
	msg := fmt.Sprintf("poll every %s, at most %d attempts, timeout %s", r.PollInterval, r.MaxAttempts, r.Timeout)
	if r.Timeout > 0 && cfg.Server.WriteTimeout > 0 && r.Timeout >= cfg.Server.WriteTimeout {
		return CheckResult{
			Status:  StatusWarn,
			Message: msg + "; run timeout is not below the server write timeout",
			Fix:     "Lower run.timeout or raise server.write_timeout so timeouts reach the caller",
		}
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

func checkJournal(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if !cfg.Journal.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	j, err := journal.NewSQLiteJournal(cfg.Journal.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Journal.Path, err),
			Fix:     "Check journal.path is writable",
		}
	}
	j.Close()
	return CheckResult{Status: StatusPass, Message: "writable at " + cfg.Journal.Path}
}
