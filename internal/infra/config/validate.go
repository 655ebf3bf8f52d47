package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
//
// A missing API key is deliberately not a validation error: the chat endpoint
// answers with a configuration error instead of the process refusing to start.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAssistant(cfg, ve)
	validateRun(cfg, ve)
	validateServer(cfg, ve)
	validateJournal(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAssistant(cfg *Config, ve *ValidationError) {
	a := cfg.Assistant
	if a.BaseURL == "" {
		ve.Add("assistant.base_url must not be empty")
	} else if u, err := url.Parse(a.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("assistant.base_url %q is not an absolute URL", a.BaseURL)
	}
	if a.ConnTimeout < 0 {
		ve.Add("assistant.conn_timeout must be >= 0")
	}
	if a.RespTimeout < 0 {
		ve.Add("assistant.resp_timeout must be >= 0")
	}
	if a.CircuitBreaker.Enabled {
		if a.CircuitBreaker.MaxFailures == 0 {
			ve.Add("assistant.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if a.CircuitBreaker.Timeout < 0 || a.CircuitBreaker.Interval < 0 {
			ve.Add("assistant.circuit_breaker durations must be >= 0")
		}
	}
}

func validateRun(cfg *Config, ve *ValidationError) {
	r := cfg.Run
	if r.PollInterval <= 0 {
		ve.Add("run.poll_interval must be > 0")
	}
	if r.MaxAttempts < 0 {
		ve.Add("run.max_attempts must be >= 0")
	}
	if r.Timeout < 0 {
		ve.Add("run.timeout must be >= 0")
	}
	if r.MaxAttempts == 0 && r.Timeout == 0 {
		ve.Add("run.max_attempts and run.timeout cannot both be 0 (polling would be unbounded)")
	}
	if r.MaxConcurrent < 0 {
		ve.Add("run.max_concurrent must be >= 0")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", s.Addr, err)
	}
	if !strings.HasPrefix(s.ChatPath, "/") {
		ve.Add("server.chat_path %q must start with /", s.ChatPath)
	}
	if s.MaxBodyBytes <= 0 {
		ve.Add("server.max_body_bytes must be > 0")
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		ve.Add("server read/write timeouts must be >= 0")
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if s.RateLimit.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when enabled")
		}
	}
	for i, p := range s.RateLimit.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("server.rate_limit.trusted_proxies[%d] %q is not an IP address", i, p)
		}
	}
}

func validateJournal(cfg *Config, ve *ValidationError) {
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		ve.Add("journal.path is required when journal is enabled")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"noop":   true,
	"stdout": true,
	"":       true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
